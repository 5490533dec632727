package world

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"gridcraft.ai/internal/sim/mathx"
	"gridcraft.ai/internal/sim/rng"
	"gridcraft.ai/internal/sim/ruleset"
)

// GenParams are the generation inputs a session derives from its config.
// Density values are multipliers over the base chances below; 1 is the
// reference world.
type GenParams struct {
	Width, Height  int
	ChunkW, ChunkH int

	TreeDensity     float64
	OreDensity      map[string]float64 // by material name, absent = 1
	CowDensity      float64
	ZombieDensity   float64
	SkeletonDensity float64

	CowHealth      int
	ZombieHealth   int
	SkeletonHealth int

	// ClearRadius suppresses creature placement near the player start.
	// The chance draws still happen, so the stream stays aligned.
	ClearRadius int
}

// Terrain shape and base placement chances. Zone thresholds apply to the
// normalized elevation field.
const (
	elevFreq   = 0.07
	treeFreq   = 0.15
	tunnelFreq = 0.12

	waterLevel    = 0.30
	sandLevel     = 0.35
	mountainLevel = 0.62
	deepLevel     = 0.75
	tunnelBand    = 0.08

	treeChance     = 0.2
	lavaChance     = 0.03
	cowChance      = 0.015
	zombieChance   = 0.007
	skeletonChance = 0.05
)

type oreRule struct {
	idx    uint8
	chance float64
}

// Generate builds a world as a pure function of (seed, params, profile).
// Cells are visited chunk row by chunk row, row-major inside each chunk,
// and every probability draw comes from one stream seeded here, so the
// traversal order is the reproducibility contract.
func Generate(seed uint64, p GenParams, rs *ruleset.Ruleset) *World {
	r := rng.New(seed)
	elev := opensimplex.NewNormalized(int64(r.Uint64()))
	trees := opensimplex.New(int64(r.Uint64()))
	tunnels := opensimplex.New(int64(r.Uint64()))

	w := New(p.Width, p.Height, rs, "grass")
	g := genPass{
		w:       w,
		p:       p,
		r:       r,
		elev:    elev,
		trees:   trees,
		tunnels: tunnels,
		center:  Pos{p.Width / 2, p.Height / 2},

		grass: rs.MustMaterial("grass"),
		water: rs.MustMaterial("water"),
		sand:  rs.MustMaterial("sand"),
		stone: rs.MustMaterial("stone"),
		tree:  rs.MustMaterial("tree"),
		lava:  rs.MustMaterial("lava"),
		path:  rs.MustMaterial("path"),
	}
	for i := range rs.Materials {
		gen := rs.Materials[i].Gen
		if gen == nil {
			continue
		}
		mult := 1.0
		if m, ok := p.OreDensity[rs.Materials[i].Name]; ok {
			mult = m
		}
		rule := oreRule{idx: uint8(i), chance: gen.Chance * mult}
		switch gen.Zone {
		case ruleset.ZoneMountain:
			g.mountainOres = append(g.mountainOres, rule)
		case ruleset.ZoneDeepMountain:
			g.deepOres = append(g.deepOres, rule)
		}
	}

	for cy := 0; cy < p.Height; cy += p.ChunkH {
		for cx := 0; cx < p.Width; cx += p.ChunkW {
			for y := cy; y < min(cy+p.ChunkH, p.Height); y++ {
				for x := cx; x < min(cx+p.ChunkW, p.Width); x++ {
					g.cell(Pos{x, y})
				}
			}
		}
	}

	spawn := g.findSpawn()
	w.AddObject(Object{Kind: KindPlayer, Pos: spawn})
	return w
}

type genPass struct {
	w       *World
	p       GenParams
	r       *rng.Stream
	elev    opensimplex.Noise
	trees   opensimplex.Noise
	tunnels opensimplex.Noise
	center  Pos

	grass, water, sand, stone, tree, lava, path uint8
	mountainOres, deepOres                      []oreRule
}

func (g *genPass) cell(p Pos) {
	fx, fy := float64(p.X), float64(p.Y)
	e := g.elev.Eval2(fx*elevFreq, fy*elevFreq)

	switch {
	case e < waterLevel:
		g.w.SetMaterial(p, g.water)
	case e < sandLevel:
		g.w.SetMaterial(p, g.sand)
	case e >= deepLevel:
		g.rock(p, fx, fy, true)
	case e >= mountainLevel:
		g.rock(p, fx, fy, false)
	default:
		g.open(p, fx, fy)
	}
}

// rock fills a mountain cell: tunnel, then lava (deep only), then the
// profile's ores for the zone in palette order, first hit wins.
func (g *genPass) rock(p Pos, fx, fy float64, deep bool) {
	u := g.tunnels.Eval2(fx*tunnelFreq, fy*tunnelFreq)
	if math.Abs(u) < tunnelBand {
		g.w.SetMaterial(p, g.path)
		if g.r.Chance(skeletonChance*g.p.SkeletonDensity) && g.farFromStart(p) {
			g.w.AddObject(Object{Kind: KindSkeleton, Pos: p, Health: g.p.SkeletonHealth})
		}
		return
	}
	ores := g.mountainOres
	if deep {
		if g.r.Chance(lavaChance) {
			g.w.SetMaterial(p, g.lava)
			return
		}
		ores = g.deepOres
	}
	for _, ore := range ores {
		if g.r.Chance(ore.chance) {
			g.w.SetMaterial(p, ore.idx)
			return
		}
	}
	g.w.SetMaterial(p, g.stone)
}

// open fills a lowland cell: tree on a positive grove gate, otherwise
// grass with a chance of an initial creature.
func (g *genPass) open(p Pos, fx, fy float64) {
	if g.trees.Eval2(fx*treeFreq, fy*treeFreq) > 0 && g.r.Chance(treeChance*g.p.TreeDensity) {
		g.w.SetMaterial(p, g.tree)
		return
	}
	g.w.SetMaterial(p, g.grass)
	if g.r.Chance(cowChance * g.p.CowDensity) {
		if g.farFromStart(p) {
			g.w.AddObject(Object{Kind: KindCow, Pos: p, Health: g.p.CowHealth})
		}
		return
	}
	if g.r.Chance(zombieChance*g.p.ZombieDensity) && g.farFromStart(p) {
		g.w.AddObject(Object{Kind: KindZombie, Pos: p, Health: g.p.ZombieHealth})
	}
}

func (g *genPass) farFromStart(p Pos) bool {
	return g.center.Manhattan(p) > g.p.ClearRadius
}

// findSpawn walks outward from the center in Chebyshev rings and returns
// the first walkable free cell. A world with no such cell gets its
// center forced to grass.
func (g *genPass) findSpawn() Pos {
	maxR := max(g.w.w, g.w.h)
	for r := 0; r <= maxR; r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if max(mathx.AbsInt(dx), mathx.AbsInt(dy)) != r {
					continue
				}
				p := g.center.Add(Pos{dx, dy})
				if g.w.IsWalkable(p) {
					return p
				}
			}
		}
	}
	g.w.SetMaterial(g.center, g.grass)
	return g.center
}
