package plan

// Geometry constants, millimetres.
const (
	forwardBase   = 100.0
	lateralOffset = 40.0
	retractDepth  = 50.0
	engageDepth   = 0.0

	// MarksPerLayer is the number of lateral positions printed on a layer.
	MarksPerLayer = 3
)

// Waypoint is one print mark, in metres.
type Waypoint struct {
	Layer   int
	Forward float64
	Lateral float64
	Engage  float64
	Retract float64
}

// Waypoints returns three marks per printed layer, in layer order.
//
// Every layer advances the forward offset by the class height, printed or not,
// so marks stay aligned with the physical layer they belong to.
func Waypoints(class CartonClass, side Side) ([]Waypoint, error) {
	layers, err := LayerPlan(class, side)
	if err != nil {
		return nil, err
	}

	w := class.Width
	laterals := [MarksPerLayer]float64{
		-w/2 - lateralOffset,
		w/2 - lateralOffset,
		1.5*w - lateralOffset,
	}

	var out []Waypoint
	forward := forwardBase
	for layer, printing := range layers {
		if layer >= 1 {
			forward += class.Height
		}
		if !printing {
			continue
		}
		for _, lat := range laterals {
			out = append(out, Waypoint{
				Layer:   layer,
				Forward: mm(forward),
				Lateral: mm(lat),
				Engage:  mm(engageDepth),
				Retract: mm(engageDepth + retractDepth),
			})
		}
	}
	return out, nil
}

func mm(v float64) float64 { return v / 1000 }
