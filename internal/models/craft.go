package models

import (
	"encoding/json"
	"fmt"
)

// Point is a position in craft space.
type Point struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

// Craft is the example composite record served on /craft.
// It owns its Location by value.
type Craft struct {
	Fuel     int32 `json:"fuel"`
	VelX     int32 `json:"vel_x"`
	VelY     int32 `json:"vel_y"`
	VelZ     int32 `json:"vel_z"`
	Location Point `json:"location"`
}

// Hardware reports host core counts on /stats.
type Hardware struct {
	CPUCount  uint `json:"cpu_count"`
	CoreCount uint `json:"core_count"`
}

// ExampleCraft returns the fixed craft used by the /craft route and the
// startup self-test.
func ExampleCraft() Craft {
	return Craft{
		Fuel: 12,
		VelX: 1,
		VelY: 2,
		VelZ: 2,
		Location: Point{
			X: 10,
			Y: 22,
			Z: 9,
		},
	}
}

// NewHardware builds a Hardware record from host core counts.
//
// CPUCount carries the physical count and CoreCount the logical count.
// The names look swapped, but clients already depend on this wire shape.
func NewHardware(logical, physical int) Hardware {
	return Hardware{
		CPUCount:  uint(physical),
		CoreCount: uint(logical),
	}
}

// RoundTrip serializes c to JSON and decodes it back.
func RoundTrip(c Craft) (string, Craft, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", Craft{}, fmt.Errorf("marshal craft: %w", err)
	}
	var out Craft
	if err := json.Unmarshal(data, &out); err != nil {
		return "", Craft{}, fmt.Errorf("unmarshal craft: %w", err)
	}
	return string(data), out, nil
}
