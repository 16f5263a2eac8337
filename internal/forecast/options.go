package forecast

import (
	"log/slog"
	"runtime"

	applog "fintrack/internal/log"
)

type LinearStrategy string

const (
	LinearTPE  LinearStrategy = "tpe"
	LinearGrid LinearStrategy = "grid"
)

// Options tune the searches. The zero value is usable; missing fields take
// the defaults of DefaultOptions.
type Options struct {
	LinearTrials   int
	LinearStrategy LinearStrategy
	XGBoostTrials  int
	Weighted       bool
	IncludeForest  bool
	Seed           uint64
	Parallelism    int
	Logger         *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		LinearTrials:   100,
		LinearStrategy: LinearTPE,
		XGBoostTrials:  160,
		Seed:           42,
		Parallelism:    runtime.NumCPU(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.LinearTrials <= 0 {
		o.LinearTrials = d.LinearTrials
	}
	if o.LinearStrategy == "" {
		o.LinearStrategy = d.LinearStrategy
	}
	if o.XGBoostTrials <= 0 {
		o.XGBoostTrials = d.XGBoostTrials
	}
	if o.Parallelism <= 0 {
		o.Parallelism = d.Parallelism
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// modelLogger stamps records with the forecast component and the model kind.
func (o Options) modelLogger(kind ModelKind) *slog.Logger {
	return applog.FromSlog(o.Logger, applog.ComponentForecast).With(applog.FieldModel, kind).Logger
}

// seedFor derives a per-model seed so that models do not share random streams.
func (o Options) seedFor(kind ModelKind) uint64 {
	h := o.Seed ^ 0xcbf29ce484222325
	for _, c := range []byte(kind) {
		h ^= uint64(c)
		h *= 0x100000001b3
	}
	return h
}
