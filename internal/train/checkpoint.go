package train

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/optim"
	"github.com/born-ml/teafacto/internal/serialization"
	"github.com/born-ml/teafacto/internal/tensor"
)

// optimizerPrefix prefixes optimizer buffers in checkpoint containers.
const optimizerPrefix = block.AuxPrefix + "optimizer."

// Checkpoint is a training state snapshot: the frozen block, the optimizer
// with its buffers and the progress made so far.
//
// Example:
//
//	f, _ := os.Create("copy.ckpt")
//	err := tr.Save(f)
//
// and later:
//
//	cp, err := train.LoadCheckpoint(r)
//	tr, err := block.Train(block.NewModel(cp.Block), train.New, gold, data...)
//	hist, err := tr.Resume(cp).Epochs(20).Run(ctx)
type Checkpoint struct {
	Block           block.Block
	Epoch           int // completed epochs
	Step            int64
	Loss            float64
	OptimizerType   string
	OptimizerConfig map[string]float64
	OptimizerState  map[string]*tensor.RawTensor
	History         History
}

// Save writes the model, the optimizer state and the progress to w. The
// model's block must be freezable.
func (t *Trainer) Save(w io.Writer) error {
	header, tensors, err := block.FrozenState(t.setup.Model.Block())
	if err != nil {
		return err
	}
	optName, optHP := t.optName, t.optHP
	if t.opt != nil {
		optName, optHP = t.opt.Name(), t.opt.Config()
		state := t.opt.StateDict()
		for _, k := range optim.Keys(state) {
			tensors = append(tensors, serialization.Tensor{Name: optimizerPrefix + k, Value: state[k]})
		}
	}
	hist, err := json.Marshal(t.history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	var last float64
	if n := len(t.history.Train); n > 0 {
		last = t.history.Train[n-1]
	}
	header.Checkpoint = &serialization.CheckpointMeta{
		Epoch:           t.epoch,
		Step:            t.step,
		Loss:            last,
		OptimizerType:   optName,
		OptimizerConfig: optHP,
		History:         hist,
	}
	return serialization.Write(w, header, tensors)
}

// LoadCheckpoint reads a container written by Trainer.Save and rebuilds
// its block.
func LoadCheckpoint(r io.Reader) (*Checkpoint, error) {
	f, err := serialization.Read(r)
	if err != nil {
		return nil, err
	}
	meta := f.Header.Checkpoint
	if meta == nil {
		return nil, ErrNotCheckpoint
	}
	b, err := block.Rebuild(f)
	if err != nil {
		return nil, err
	}
	cp := &Checkpoint{
		Block:           b,
		Epoch:           meta.Epoch,
		Step:            meta.Step,
		Loss:            meta.Loss,
		OptimizerType:   meta.OptimizerType,
		OptimizerConfig: meta.OptimizerConfig,
		OptimizerState:  make(map[string]*tensor.RawTensor),
	}
	if len(meta.History) > 0 {
		if err := json.Unmarshal(meta.History, &cp.History); err != nil {
			return nil, fmt.Errorf("checkpoint history: %w", err)
		}
	}
	for _, name := range f.Names() {
		if key, ok := strings.CutPrefix(name, optimizerPrefix); ok {
			v, _ := f.Tensor(name)
			cp.OptimizerState[key] = v
		}
	}
	return cp, nil
}

// Resume continues from cp: the optimizer, its buffers, the epoch counter
// and the history are restored. The trainer's model must hold cp.Block.
func (t *Trainer) Resume(cp *Checkpoint) *Trainer {
	if t.setup.Model.Block() != cp.Block {
		return t.fail(fmt.Errorf("%w: resuming %s into a model of %s", ErrConfig, cp.Block.Name(), t.setup.Model.Block().Name()))
	}
	t.optName, t.optHP = cp.OptimizerType, cp.OptimizerConfig
	t.optState = cp.OptimizerState
	t.opt = nil
	t.epoch, t.step = cp.Epoch, cp.Step
	t.history = cp.History
	return t
}
