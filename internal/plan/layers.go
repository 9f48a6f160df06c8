package plan

// LayerPlan returns, bottom layer first, whether each layer gets a mark.
func LayerPlan(class CartonClass, side Side) ([]bool, error) {
	if err := class.Validate(); err != nil {
		return nil, err
	}
	invert, err := inverted(side)
	if err != nil {
		return nil, err
	}

	out := make([]bool, class.Layers)
	for x := range class.Layers {
		var marked bool
		switch class.Family {
		case Alternating:
			marked = (x+1)%2 != 0
		case TopBiased:
			marked = x+2 != class.Layers
		}
		out[x] = marked != invert
	}
	return out, nil
}

func inverted(side Side) (bool, error) {
	switch side {
	case SideA:
		return false, nil
	case SideB:
		return true, nil
	default:
		_, err := ParseSide(string(side))
		return false, err
	}
}
