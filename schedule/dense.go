// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"k8s.io/klog/v2"

	"github.com/gomlx/dynsched/hardware"
	"github.com/gomlx/dynsched/internal/workerspool"
	"github.com/gomlx/dynsched/workload"
)

// Dense is the template family for Y[M,N] = X[M,K] * W[K,N] with a dynamic
// sequence dimension: M = Batch*T, K = I, N = H, parameterized over the shape
// variables (T, I, H). This is the transformer projection workload: the
// weights are static, the token count T varies per request.
//
// A candidate tiles the two spatial loops with a (group tile, thread tile)
// pair each and the reduction loop with a single tile staged through shared
// memory. The zero value is not usable; use NewDense.
type Dense struct {
	// Batch is the fixed batch size multiplied into the dynamic T.
	Batch int

	// DType of the operands.
	DType DType

	// MinPaddingRatio discards candidates whose tile padding wastes too
	// much work on any instance: the candidate is kept only if
	// extent / roundUp(extent, tile), multiplied over the tiled loops, is
	// at least this ratio for every instance. 0 disables the check.
	MinPaddingRatio float64

	pool *workerspool.Pool
}

// NewDense returns a Dense template with the given fixed batch size in f32
// and the default padding threshold.
func NewDense(batch int) *Dense {
	return &Dense{
		Batch:           batch,
		DType:           Float32,
		MinPaddingRatio: 0.75,
		pool:            workerspool.New(),
	}
}

func (d *Dense) Name() string { return "dense" }

// ShapeVars declares (T, I, H).
func (d *Dense) ShapeVars() []workload.ShapeVar {
	return []workload.ShapeVar{{Name: "T"}, {Name: "I"}, {Name: "H"}}
}

// The tile grids enumerated per loop. Group tiles are multiples of the
// per-thread micro tiles below; thread counts derived from a pairing outside
// [32, 1024] are discarded.
var (
	denseGroupTiles  = []int{16, 32, 48, 64, 96, 128}
	denseThreadTiles = []int{2, 4, 8}
	denseReduceTiles = []int{8, 16, 32}
)

type denseConfig struct {
	tileM, tileN, tileK      int
	threadTileM, threadTileN int
}

// Enumerate produces the candidate pool for the instance set, sized at the
// set's largest instance. Enumeration is pure and runs on a worker pool;
// candidate IDs follow the (deterministic) configuration grid order.
func (d *Dense) Enumerate(set *workload.InstanceSet) ([]*Candidate, error) {
	if err := set.Validate(d.ShapeVars()); err != nil {
		return nil, err
	}

	var configs []denseConfig
	for _, tileM := range denseGroupTiles {
		for _, tileN := range denseGroupTiles {
			for _, tileK := range denseReduceTiles {
				for _, ttM := range denseThreadTiles {
					for _, ttN := range denseThreadTiles {
						if tileM%ttM != 0 || tileN%ttN != 0 {
							continue
						}
						threads := (tileM / ttM) * (tileN / ttN)
						if threads < 32 || threads > 1024 {
							continue
						}
						configs = append(configs, denseConfig{tileM, tileN, tileK, ttM, ttN})
					}
				}
			}
		}
	}

	maxValues := set.MaxValues()
	maxM, maxK, maxN := d.Batch*maxValues[0], maxValues[1], maxValues[2]

	candidates := make([]*Candidate, len(configs))
	d.pool.For(len(configs), func(i int) {
		cfg := configs[i]
		if d.MinPaddingRatio > 0 && d.paddingRatio(cfg, set) < d.MinPaddingRatio {
			return
		}
		candidates[i] = d.build(cfg, maxM, maxK, maxN)
	})

	// Compact, assigning IDs in grid order.
	kept := make([]*Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand == nil {
			continue
		}
		cand.ID = len(kept)
		kept = append(kept, cand)
	}
	klog.V(1).Infof("dense: enumerated %d candidates (%d configurations, %d discarded by padding)",
		len(kept), len(configs), len(configs)-len(kept))
	return kept, nil
}

// paddingRatio returns the worst-case useful-work fraction of the config
// across all instances: tiles that overhang an instance's extent pad the
// launch with wasted work.
func (d *Dense) paddingRatio(cfg denseConfig, set *workload.InstanceSet) float64 {
	worst := 1.0
	for _, inst := range set.Instances() {
		m, n := d.Batch*inst.Values[0], inst.Values[2]
		ratio := paddedRatio(m, cfg.tileM) * paddedRatio(n, cfg.tileN)
		if ratio < worst {
			worst = ratio
		}
	}
	return worst
}

func paddedRatio(extent, tile int) float64 {
	return float64(extent) / float64(ceilTo(extent, tile))
}

// build derives the candidate and its footprint at the sizing shape (m, k, n).
func (d *Dense) build(cfg denseConfig, m, k, n int) *Candidate {
	elem := int64(d.DType.Size())
	groups := ceilDiv(m, cfg.tileM) * ceilDiv(n, cfg.tileN)
	threads := (cfg.tileM / cfg.threadTileM) * (cfg.tileN / cfg.threadTileN)

	// Global traffic: every group stages its tileM*K and K*tileN operand
	// slices through shared memory, plus the output write.
	globalBytes := int64(groups)*int64(cfg.tileM+cfg.tileN)*int64(k)*elem +
		int64(m)*int64(n)*elem

	// Shared traffic: per output element, each thread re-reads its micro
	// tile operands once per reduction step.
	ttM, ttN := cfg.threadTileM, cfg.threadTileN
	sharedBytes := int64(m) * int64(n) * int64(k) * int64(ttM+ttN) / int64(ttM*ttN) * elem

	// Accumulators plus one operand fragment each, and some addressing
	// overhead. Mirrors how a hand-written kernel budgets its registers.
	regs := ttM*ttN + ttM + ttN + 8

	c := &Candidate{
		Template:    d.Name(),
		SpaceTiles:  [][2]int{{cfg.tileM, ttM}, {cfg.tileN, ttN}},
		ReduceTiles: []int{cfg.tileK},
		DType:       d.DType,
	}
	c.Footprint = Footprint{
		FLOPs:                  2 * float64(m) * float64(n) * float64(k),
		RegistersPerThread:     regs,
		RegisterBytesPerThread: int64(regs) * 4,
		ThreadsPerGroup:        threads,
		SharedBytesPerGroup:    int64(cfg.tileM+cfg.tileN) * int64(cfg.tileK) * elem,
		GroupCount:             groups,
	}
	c.Footprint.BytesPerLevel[LevelGlobal] = globalBytes
	c.Footprint.BytesPerLevel[LevelShared] = sharedBytes
	// Staging loads are coalesced; shared reads of the row operand stride by
	// the micro tile.
	c.Footprint.Access[LevelGlobal] = hardware.Unit(int(elem))
	c.Footprint.Access[LevelShared] = hardware.AccessPattern{
		StrideBytes: ttM * int(elem),
		ElemBytes:   int(elem),
	}
	return c
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func ceilTo(a, b int) int { return ceilDiv(a, b) * b }
