package arena

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// floodCount returns how many path cells are reachable from start.
func floodCount(a Arena, start Point) int {
	seen := map[Point]bool{start: true}
	queue := []Point{start}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, d := range fourNeighbours {
			n := Point{p.X + d.X, p.Y + d.Y}
			if a.IsPath(n) && !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return len(seen)
}

func pathCells(a Arena) []Point {
	var out []Point
	for y, row := range a.Grid {
		for x, c := range row {
			if c == Path {
				out = append(out, Point{x, y})
			}
		}
	}
	return out
}

func assertBorderSealed(t *testing.T, a Arena) {
	t.Helper()
	n := len(a.Grid)
	for i := 0; i < n; i++ {
		for _, p := range []Point{{i, 0}, {i, n - 1}, {0, i}, {n - 1, i}} {
			if a.Grid[p.Y][p.X] != Wall {
				t.Fatalf("border cell %v is not a wall", p)
			}
		}
	}
}

func TestGenerateInvariants(t *testing.T) {
	tests := []struct {
		name string
		cfg  func() Config
	}{
		{"defaults", DefaultConfig},
		{"match room", func() Config {
			c := DefaultConfig()
			c.Size, c.FillPercent, c.SimulationSteps = 33, 0.47, 17
			return c
		}},
		{"zero radius tunnels", func() Config {
			c := DefaultConfig()
			c.Size, c.TunnelRadius, c.MinRegionSize = 41, 0, 4
			return c
		}},
		{"dense noise", func() Config {
			c := DefaultConfig()
			c.FillPercent, c.SimulationSteps = 0.6, 2
			return c
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for seed := int64(1); seed <= 20; seed++ {
				cfg := tt.cfg()
				cfg.Seed = seed

				a, err := Generate(cfg)
				require.NoError(t, err)
				require.Len(t, a.Grid, cfg.Size)

				assertBorderSealed(t, a)

				cells := pathCells(a)
				if len(cells) == 0 {
					continue
				}
				assert.Equal(t, len(cells), floodCount(a, cells[0]), "seed %d: path cells are not one region", seed)
			}
		})
	}
}

func TestGenerateSpawnSpacing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Size, cfg.SpawnCount, cfg.FillPercent, cfg.SimulationSteps = 33, 4, 0.47, 17

	minDist := float64(cfg.Size) / float64(cfg.SpawnCount)
	for seed := int64(1); seed <= 20; seed++ {
		cfg.Seed = seed
		a, err := Generate(cfg)
		require.NoError(t, err)

		assert.LessOrEqual(t, len(a.Spawns), cfg.SpawnCount)
		assert.Equal(t, cfg.SpawnCount, a.SpawnCount)
		for i, s := range a.Spawns {
			assert.True(t, a.IsPath(s), "spawn %v is not walkable", s)
			for _, o := range a.Spawns[i+1:] {
				assert.GreaterOrEqual(t, float64(distSq(s, o)), minDist*minDist)
			}
		}
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 42

	a, err := Generate(cfg)
	require.NoError(t, err)
	b, err := Generate(cfg)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestGenerateAllWallNoise(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Size = 9
	cfg.FillPercent = 1
	cfg.Seed = 7

	a, err := Generate(cfg)
	require.NoError(t, err)
	assert.Empty(t, pathCells(a))
	assert.Empty(t, a.Spawns)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tiny", func(c *Config) { c.Size = 3 }},
		{"one spawn", func(c *Config) { c.SpawnCount = 1 }},
		{"seven spawns", func(c *Config) { c.SpawnCount = 7 }},
		{"fill above one", func(c *Config) { c.FillPercent = 1.5 }},
		{"threshold", func(c *Config) { c.BirthThreshold = 9 }},
		{"no attempts", func(c *Config) { c.MaxSpawnAttempts = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := Generate(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	a, err := Generate(Config{
		Size: 15, SpawnCount: 2, FillPercent: 0.45, SimulationSteps: 4,
		SurvivalThreshold: 4, BirthThreshold: 5, MinRegionSize: 5,
		TunnelRadius: 1, MaxSpawnAttempts: 100, Seed: 3,
	})
	require.NoError(t, err)

	c := a.Clone()
	c.Grid[1][1] = 1 - c.Grid[1][1]
	assert.NotEqual(t, a.Grid[1][1], c.Grid[1][1])
}
