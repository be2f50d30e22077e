package geom

// NormalizeRotation converts a rotation value into a quarter-turn count in [0,3].
//
// It accepts either quarter-turns (0..3) or degrees (multiples of 90).
func NormalizeRotation(r int) int {
	if r%90 == 0 && (r > 3 || r < -3) {
		r = r / 90
	}
	r %= 4
	if r < 0 {
		r += 4
	}
	return r
}

// RotateXZ rotates an (x,z) offset around the Y axis by rot quarter turns.
// With +X east and +Z south one quarter turn maps north onto west, i.e. it turns left.
func RotateXZ(x, z, rot int) (rx, rz int) {
	switch rot & 3 {
	case 0:
		return x, z
	case 1:
		return z, -x
	case 2:
		return -x, -z
	default: // 3
		return -z, x
	}
}

func RotateOffset(off Pos, rot int) Pos {
	rx, rz := RotateXZ(off.X, off.Z, NormalizeRotation(rot))
	return Pos{X: rx, Y: off.Y, Z: rz}
}

// Turns returns the number of quarter turns needed to go from heading a to heading b.
func Turns(a, b Pos) int {
	for rot := 0; rot < 4; rot++ {
		if RotateOffset(a, rot) == b {
			if rot == 3 {
				return 1
			}
			return rot
		}
	}
	return 0
}
