// Package arena generates the cave-like grids matches are played on.
//
// Generation is a cellular automaton over random noise, followed by region
// cleanup, tunnel carving until one connected walkable region remains, and
// rejection-sampled spawn placement. The generator is pure: the same Config
// with a non-zero Seed always yields the same Arena.
package arena

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// Cell is the content of one grid square.
type Cell int

const (
	Path Cell = 0
	Wall Cell = 1
)

// Point is a grid coordinate. X is the column, Y the row.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Arena is a generated map plus its spawn points.
type Arena struct {
	Grid       [][]Cell `json:"grid"`
	Spawns     []Point  `json:"spawns"`
	SpawnCount int      `json:"spawnCount"`
}

// Config holds the generation parameters.
type Config struct {
	Size              int     `yaml:"size"`
	SpawnCount        int     `yaml:"spawn_count"`
	FillPercent       float64 `yaml:"fill_percent"`
	SimulationSteps   int     `yaml:"simulation_steps"`
	SurvivalThreshold int     `yaml:"survival_threshold"`
	BirthThreshold    int     `yaml:"birth_threshold"`
	MinRegionSize     int     `yaml:"min_region_size"`
	TunnelRadius      int     `yaml:"tunnel_radius"`
	MaxSpawnAttempts  int     `yaml:"max_spawn_attempts"`
	Seed              int64   `yaml:"seed"` // 0 seeds from the clock
}

// Spawn capacity bounds
const (
	MinSpawns = 2
	MaxSpawns = 6
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("arena: invalid config")

// DefaultConfig returns the standard generator settings.
func DefaultConfig() Config {
	return Config{
		Size:              51,
		SpawnCount:        4,
		FillPercent:       0.48,
		SimulationSteps:   6,
		SurvivalThreshold: 4,
		BirthThreshold:    5,
		MinRegionSize:     20,
		TunnelRadius:      1,
		MaxSpawnAttempts:  1000,
	}
}

// Validate checks that the config can produce an arena.
func (c Config) Validate() error {
	switch {
	case c.Size < 5:
		return fmt.Errorf("%w: size %d is below 5", ErrInvalidConfig, c.Size)
	case c.SpawnCount < MinSpawns || c.SpawnCount > MaxSpawns:
		return fmt.Errorf("%w: spawn count %d outside [%d,%d]", ErrInvalidConfig, c.SpawnCount, MinSpawns, MaxSpawns)
	case c.FillPercent < 0 || c.FillPercent > 1:
		return fmt.Errorf("%w: fill percent %.2f outside [0,1]", ErrInvalidConfig, c.FillPercent)
	case c.SimulationSteps < 0:
		return fmt.Errorf("%w: negative simulation steps", ErrInvalidConfig)
	case c.SurvivalThreshold < 0 || c.SurvivalThreshold > 8, c.BirthThreshold < 0 || c.BirthThreshold > 8:
		return fmt.Errorf("%w: neighbour thresholds must be in [0,8]", ErrInvalidConfig)
	case c.MinRegionSize < 0:
		return fmt.Errorf("%w: negative min region size", ErrInvalidConfig)
	case c.TunnelRadius < 0:
		return fmt.Errorf("%w: negative tunnel radius", ErrInvalidConfig)
	case c.MaxSpawnAttempts <= 0:
		return fmt.Errorf("%w: spawn attempt budget must be positive", ErrInvalidConfig)
	}
	return nil
}

// Generate builds a new arena. The returned arena may hold fewer than
// cfg.SpawnCount spawns when the attempt budget ran out; callers that need
// full capacity must check len(Spawns).
func Generate(cfg Config) (Arena, error) {
	if err := cfg.Validate(); err != nil {
		return Arena{}, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &generator{
		cfg:  cfg,
		size: cfg.Size,
		rng:  rand.New(rand.NewSource(seed)),
	}

	g.seed()
	for i := 0; i < cfg.SimulationSteps; i++ {
		g.step()
	}
	g.removeSmallRegions()
	g.connectRegions()

	return Arena{
		Grid:       g.grid,
		Spawns:     g.placeSpawns(),
		SpawnCount: cfg.SpawnCount,
	}, nil
}

type generator struct {
	cfg  Config
	size int
	grid [][]Cell
	rng  *rand.Rand
}

func (g *generator) seed() {
	g.grid = make([][]Cell, g.size)
	for y := range g.grid {
		row := make([]Cell, g.size)
		for x := range row {
			if g.rng.Float64() < g.cfg.FillPercent {
				row[x] = Wall
			}
		}
		g.grid[y] = row
	}
	g.sealBorder()
}

func (g *generator) sealBorder() {
	last := g.size - 1
	for i := 0; i < g.size; i++ {
		g.grid[0][i] = Wall
		g.grid[last][i] = Wall
		g.grid[i][0] = Wall
		g.grid[i][last] = Wall
	}
}

// step runs one automaton pass. Out-of-bounds neighbours count as walls.
func (g *generator) step() {
	next := make([][]Cell, g.size)
	for y := 0; y < g.size; y++ {
		next[y] = make([]Cell, g.size)
		for x := 0; x < g.size; x++ {
			walls := g.wallNeighbours(x, y)
			if g.grid[y][x] == Wall {
				if walls >= g.cfg.SurvivalThreshold {
					next[y][x] = Wall
				}
			} else if walls >= g.cfg.BirthThreshold {
				next[y][x] = Wall
			}
		}
	}
	g.grid = next
	g.sealBorder()
}

func (g *generator) wallNeighbours(x, y int) int {
	n := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if !g.inBounds(nx, ny) || g.grid[ny][nx] == Wall {
				n++
			}
		}
	}
	return n
}

func (g *generator) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.size && y < g.size
}

func (g *generator) interior(x, y int) bool {
	return x > 0 && y > 0 && x < g.size-1 && y < g.size-1
}

var fourNeighbours = [4]Point{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}

// regions labels every 4-connected group of path cells, scanning rows top
// to bottom so the result is deterministic for a given grid.
func (g *generator) regions() [][]Point {
	seen := make([][]bool, g.size)
	for y := range seen {
		seen[y] = make([]bool, g.size)
	}

	var out [][]Point
	for y := 0; y < g.size; y++ {
		for x := 0; x < g.size; x++ {
			if seen[y][x] || g.grid[y][x] != Path {
				continue
			}
			region := []Point{{x, y}}
			seen[y][x] = true
			for i := 0; i < len(region); i++ {
				p := region[i]
				for _, d := range fourNeighbours {
					nx, ny := p.X+d.X, p.Y+d.Y
					if g.inBounds(nx, ny) && !seen[ny][nx] && g.grid[ny][nx] == Path {
						seen[ny][nx] = true
						region = append(region, Point{nx, ny})
					}
				}
			}
			out = append(out, region)
		}
	}
	return out
}

func (g *generator) removeSmallRegions() {
	for _, region := range g.regions() {
		if len(region) >= g.cfg.MinRegionSize {
			continue
		}
		for _, p := range region {
			g.grid[p.Y][p.X] = Wall
		}
	}
}

// connectRegions carves a tunnel from every secondary region to the largest
// one. Tunnels only touch interior cells, so the border stays sealed.
func (g *generator) connectRegions() {
	regions := g.regions()
	if len(regions) < 2 {
		return
	}
	sort.SliceStable(regions, func(i, j int) bool {
		return len(regions[i]) > len(regions[j])
	})

	largest := regions[0]
	for _, region := range regions[1:] {
		from, to := nearestPair(region, largest)
		g.carveLine(from, to)
	}
}

// nearestPair is a brute-force search; it runs once per arena.
func nearestPair(a, b []Point) (Point, Point) {
	best := -1
	var pa, pb Point
	for _, p := range a {
		for _, q := range b {
			if d := distSq(p, q); best < 0 || d < best {
				best, pa, pb = d, p, q
			}
		}
	}
	return pa, pb
}

func distSq(a, b Point) int {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}

// carveLine walks a Bresenham line and clears a square brush at every step.
func (g *generator) carveLine(from, to Point) {
	x, y := from.X, from.Y
	dx, dy := abs(to.X-x), -abs(to.Y-y)
	sx, sy := sign(to.X-x), sign(to.Y-y)
	e := dx + dy

	for {
		g.carve(x, y)
		if x == to.X && y == to.Y {
			return
		}
		e2 := 2 * e
		stepX, stepY := e2 >= dy, e2 <= dx
		if stepX {
			e += dy
			x += sx
		}
		// diagonal step: clear the corner so a zero radius stays 4-connected
		if stepX && stepY {
			g.carve(x, y)
		}
		if stepY {
			e += dx
			y += sy
		}
	}
}

func (g *generator) carve(cx, cy int) {
	r := g.cfg.TunnelRadius
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if g.interior(x, y) {
				g.grid[y][x] = Path
			}
		}
	}
}

// placeSpawns samples random path cells and keeps those far enough from
// every spawn already chosen.
func (g *generator) placeSpawns() []Point {
	var cells []Point
	for y := 0; y < g.size; y++ {
		for x := 0; x < g.size; x++ {
			if g.grid[y][x] == Path {
				cells = append(cells, Point{x, y})
			}
		}
	}
	spawns := make([]Point, 0, g.cfg.SpawnCount)
	if len(cells) == 0 {
		return spawns
	}

	minDist := float64(g.size) / float64(g.cfg.SpawnCount)
	minDistSq := minDist * minDist

	for attempt := 0; attempt < g.cfg.MaxSpawnAttempts && len(spawns) < g.cfg.SpawnCount; attempt++ {
		c := cells[g.rng.Intn(len(cells))]
		ok := true
		for _, s := range spawns {
			if float64(distSq(c, s)) < minDistSq {
				ok = false
				break
			}
		}
		if ok {
			spawns = append(spawns, c)
		}
	}
	return spawns
}

// InBounds reports whether p lies on the grid.
func (a Arena) InBounds(p Point) bool {
	return p.Y >= 0 && p.Y < len(a.Grid) && p.X >= 0 && p.X < len(a.Grid[p.Y])
}

// IsPath reports whether p is a walkable cell.
func (a Arena) IsPath(p Point) bool {
	return a.InBounds(p) && a.Grid[p.Y][p.X] == Path
}

// Clone returns a deep copy.
func (a Arena) Clone() Arena {
	grid := make([][]Cell, len(a.Grid))
	for i, row := range a.Grid {
		grid[i] = append([]Cell(nil), row...)
	}
	return Arena{
		Grid:       grid,
		Spawns:     append([]Point(nil), a.Spawns...),
		SpawnCount: a.SpawnCount,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
