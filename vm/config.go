// Package vm implements the Petrel script engine core: the tagged-union
// value model, the generational heap and its collectors, the bytecode
// interpreter, the binding model, and the context/isolate aggregation.
package vm

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ---------------------------------------------------------------------------
// EngineConfig: petrel.toml tunables
// ---------------------------------------------------------------------------

// HeapConfig sizes the heap spaces.
type HeapConfig struct {
	YoungCapacity  int     `toml:"young-capacity"`
	OldCapacity    int     `toml:"old-capacity"`
	CodeCapacity   int     `toml:"code-capacity"`
	LargeCapacity  int     `toml:"large-capacity"`
	PageSize       int     `toml:"page-size"`
	GCTriggerRatio float64 `toml:"gc-trigger-ratio"`
}

// InterpreterConfig bounds execution.
type InterpreterConfig struct {
	MaxCallDepth int  `toml:"max-call-depth"`
	Strict       bool `toml:"strict"`
}

// EventLoopConfig tunes the task scheduler. Intervals are in milliseconds.
type EventLoopConfig struct {
	FrameIntervalMS       int `toml:"frame-interval-ms"`
	MaxMicrotasksPerCycle int `toml:"max-microtasks-per-cycle"`
	LongTaskThresholdMS   int `toml:"long-task-threshold-ms"`
	IdleBudgetMS          int `toml:"idle-budget-ms"`
}

// FrameInterval returns the render-pass interval.
func (e *EventLoopConfig) FrameInterval() time.Duration {
	return time.Duration(e.FrameIntervalMS) * time.Millisecond
}

// LongTaskThreshold returns the long-task diagnostic threshold.
func (e *EventLoopConfig) LongTaskThreshold() time.Duration {
	return time.Duration(e.LongTaskThresholdMS) * time.Millisecond
}

// IdleBudget returns the per-frame idle-callback budget.
func (e *EventLoopConfig) IdleBudget() time.Duration {
	return time.Duration(e.IdleBudgetMS) * time.Millisecond
}

// EngineConfig is the engine's full tunable surface, decodable from
// petrel.toml.
type EngineConfig struct {
	Heap        *HeapConfig        `toml:"heap"`
	Interpreter *InterpreterConfig `toml:"interpreter"`
	EventLoop   *EventLoopConfig   `toml:"event-loop"`
	MaxContexts int                `toml:"max-contexts"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Heap: &HeapConfig{
			YoungCapacity:  8 * 1024 * 1024,
			OldCapacity:    64 * 1024 * 1024,
			CodeCapacity:   16 * 1024 * 1024,
			LargeCapacity:  32 * 1024 * 1024,
			PageSize:       DefaultPageSize,
			GCTriggerRatio: 0.8,
		},
		Interpreter: &InterpreterConfig{
			MaxCallDepth: 10000,
			Strict:       true,
		},
		EventLoop: &EventLoopConfig{
			FrameIntervalMS:       16,
			MaxMicrotasksPerCycle: 1000,
			LongTaskThresholdMS:   50,
			IdleBudgetMS:          4,
		},
		MaxContexts: 16,
	}
}

// LoadConfig parses a petrel.toml file, filling unset sections with
// defaults.
func LoadConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var cfg EngineConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills zero-valued fields from DefaultConfig.
func (cfg *EngineConfig) applyDefaults() {
	def := DefaultConfig()
	if cfg.Heap == nil {
		cfg.Heap = def.Heap
	} else {
		h := cfg.Heap
		if h.YoungCapacity == 0 {
			h.YoungCapacity = def.Heap.YoungCapacity
		}
		if h.OldCapacity == 0 {
			h.OldCapacity = def.Heap.OldCapacity
		}
		if h.CodeCapacity == 0 {
			h.CodeCapacity = def.Heap.CodeCapacity
		}
		if h.LargeCapacity == 0 {
			h.LargeCapacity = def.Heap.LargeCapacity
		}
		if h.PageSize == 0 {
			h.PageSize = def.Heap.PageSize
		}
		if h.GCTriggerRatio == 0 {
			h.GCTriggerRatio = def.Heap.GCTriggerRatio
		}
	}
	if cfg.Interpreter == nil {
		cfg.Interpreter = def.Interpreter
	} else if cfg.Interpreter.MaxCallDepth == 0 {
		cfg.Interpreter.MaxCallDepth = def.Interpreter.MaxCallDepth
	}
	if cfg.EventLoop == nil {
		cfg.EventLoop = def.EventLoop
	} else {
		e := cfg.EventLoop
		if e.FrameIntervalMS == 0 {
			e.FrameIntervalMS = def.EventLoop.FrameIntervalMS
		}
		if e.MaxMicrotasksPerCycle == 0 {
			e.MaxMicrotasksPerCycle = def.EventLoop.MaxMicrotasksPerCycle
		}
		if e.LongTaskThresholdMS == 0 {
			e.LongTaskThresholdMS = def.EventLoop.LongTaskThresholdMS
		}
		if e.IdleBudgetMS == 0 {
			e.IdleBudgetMS = def.EventLoop.IdleBudgetMS
		}
	}
	if cfg.MaxContexts == 0 {
		cfg.MaxContexts = def.MaxContexts
	}
}
