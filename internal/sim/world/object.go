package world

// ObjectKind tags the variant of a grid object.
type ObjectKind uint8

const (
	KindPlayer ObjectKind = iota
	KindCow
	KindZombie
	KindSkeleton
	KindArrow
	KindPlant
)

func (k ObjectKind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindCow:
		return "cow"
	case KindZombie:
		return "zombie"
	case KindSkeleton:
		return "skeleton"
	case KindArrow:
		return "arrow"
	case KindPlant:
		return "plant"
	}
	return "unknown"
}

// Object is one entry of the arena. Kind decides which of the variant
// fields carry meaning: Cooldown for zombies, Reload for skeletons, Dir
// for arrows, Growth for plants. Unused fields stay zero.
//
// The player's vitals and inventory live on the session, not here; the
// player's arena entry only occupies its cell and blocks movement.
type Object struct {
	ID     uint64     `json:"id"`
	Kind   ObjectKind `json:"kind"`
	Pos    Pos        `json:"pos"`
	Health int        `json:"health"`

	Cooldown int `json:"cooldown,omitempty"`
	Reload   int `json:"reload,omitempty"`
	Dir      Pos `json:"dir,omitempty"`
	Growth   int `json:"growth,omitempty"`
}

// IsCreature reports whether the object runs creature AI.
func (o *Object) IsCreature() bool {
	return o.Kind == KindCow || o.Kind == KindZombie || o.Kind == KindSkeleton
}

// PlantRipeAge is the growth count at which a plant becomes edible.
const PlantRipeAge = 300

// Ripe reports whether a plant object has finished growing.
func (o *Object) Ripe() bool {
	return o.Kind == KindPlant && o.Growth >= PlantRipeAge
}
