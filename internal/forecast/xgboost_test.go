package forecast

import (
	"context"
	"testing"

	"fintrack/internal/ml"
	"fintrack/internal/ml/search"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var treeOnlyParams = []string{"subsample", "colsample_bytree", "colsample_bylevel", "max_depth"}

func TestXGBoostSuggestBoosterSpace(t *testing.T) {
	tests := []struct {
		booster  ml.Booster
		treeKeys bool
	}{
		{ml.GBLinear, false},
		{ml.GBTree, true},
		{ml.Dart, true},
	}
	m := NewXGBoost(fastOptions())
	for _, tt := range tests {
		t.Run(string(tt.booster), func(t *testing.T) {
			study := search.NewStudy(11)
			study.Enqueue(map[string]any{"booster": string(tt.booster)})

			var (
				cfg       boostConfig
				suggested map[string]any
			)
			err := study.Optimize(context.Background(), func(_ context.Context, tr *search.Trial) (float64, error) {
				cfg = m.suggest(tr)
				suggested = tr.Params()
				return 1, nil
			}, 1)
			require.NoError(t, err)
			require.Equal(t, tt.booster, cfg.Params.Booster)

			described := cfg.describe()
			for _, key := range treeOnlyParams {
				if tt.treeKeys {
					assert.Contains(t, suggested, key)
					assert.Contains(t, described, key)
				} else {
					assert.NotContains(t, suggested, key)
					assert.NotContains(t, described, key)
				}
			}
			if !tt.treeKeys {
				assert.Zero(t, cfg.Params.MaxDepth)
				assert.Zero(t, cfg.Params.Subsample)
			}
			assert.Contains(t, described, "learning_rate")
			assert.Contains(t, described, "reg_lambda")
		})
	}
}
