package ecs

import "github.com/yohamta/donburi"

type IdentityData struct {
	ID EntityID
}

type PositionData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PrevPositionData is the position at the previous synced tick; presentation
// blends it with Position using the scheduler's alpha.
type PrevPositionData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type VelocityData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type UnitData struct {
	Kind     string  `json:"kind"`
	Radius   float64 `json:"radius"`
	MaxSpeed float64 `json:"max_speed"`
}

type OwnerData struct {
	Player int `json:"player"`
}

type HealthData struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

var (
	Identity     = donburi.NewComponentType[IdentityData]()
	Position     = donburi.NewComponentType[PositionData]()
	PrevPosition = donburi.NewComponentType[PrevPositionData]()
	Velocity     = donburi.NewComponentType[VelocityData]()
	Unit         = donburi.NewComponentType[UnitData]()
	Owner        = donburi.NewComponentType[OwnerData]()
	Health       = donburi.NewComponentType[HealthData]()
)
