package detector

// Reference poses in normalized image coordinates, Y growing downward. They
// stand in for real detections in tests and demos.

// finger lists the four joints of one finger from knuckle to tip.
type finger [4]Point3D

// buildPose assembles a right hand from its wrist and five fingers, thumb
// first.
func buildPose(wrist Point3D, fingers [5]finger) HandLandmarks {
	h := HandLandmarks{Handedness: Right, Score: 0.95}
	h.Points[Wrist] = wrist
	for f, joints := range fingers {
		for j, p := range joints {
			h.Points[1+f*4+j] = p
		}
	}
	return h
}

// ThumbsUpLandmarks is a right hand with the thumb raised and the other
// fingers curled into the palm.
func ThumbsUpLandmarks() HandLandmarks {
	return buildPose(Point3D{X: 0.5, Y: 0.8}, [5]finger{
		{{0.55, 0.75, 0}, {0.58, 0.65, 0}, {0.58, 0.50, 0}, {0.58, 0.35, 0}},
		{{0.55, 0.70, -0.02}, {0.55, 0.68, -0.05}, {0.52, 0.70, -0.04}, {0.50, 0.72, -0.02}},
		{{0.50, 0.68, -0.02}, {0.50, 0.66, -0.05}, {0.47, 0.68, -0.04}, {0.45, 0.70, -0.02}},
		{{0.45, 0.70, -0.02}, {0.45, 0.68, -0.05}, {0.42, 0.70, -0.04}, {0.40, 0.72, -0.02}},
		{{0.40, 0.72, -0.02}, {0.40, 0.70, -0.05}, {0.37, 0.72, -0.04}, {0.35, 0.74, -0.02}},
	})
}

// OpenPalmLandmarks is a right hand with all five fingers spread.
func OpenPalmLandmarks() HandLandmarks {
	return buildPose(Point3D{X: 0.5, Y: 0.8}, [5]finger{
		{{0.55, 0.75, 0.02}, {0.62, 0.70, 0.03}, {0.68, 0.65, 0.03}, {0.73, 0.60, 0.03}},
		{{0.55, 0.68, 0}, {0.57, 0.55, 0}, {0.58, 0.45, 0}, {0.58, 0.35, 0}},
		{{0.50, 0.66, 0}, {0.50, 0.52, 0}, {0.50, 0.40, 0}, {0.50, 0.28, 0}},
		{{0.45, 0.68, 0}, {0.43, 0.55, 0}, {0.42, 0.45, 0}, {0.42, 0.35, 0}},
		{{0.40, 0.70, 0}, {0.37, 0.60, 0}, {0.35, 0.50, 0}, {0.34, 0.42, 0}},
	})
}

// PointingLandmarks is a right hand with only the index finger extended.
func PointingLandmarks() HandLandmarks {
	return buildPose(Point3D{X: 0.5, Y: 0.8}, [5]finger{
		{{0.55, 0.75, 0}, {0.57, 0.70, -0.02}, {0.55, 0.67, -0.03}, {0.53, 0.66, -0.03}},
		{{0.55, 0.68, 0}, {0.56, 0.55, 0}, {0.57, 0.44, 0}, {0.57, 0.34, 0}},
		{{0.50, 0.68, -0.02}, {0.50, 0.66, -0.05}, {0.47, 0.68, -0.04}, {0.45, 0.70, -0.02}},
		{{0.45, 0.70, -0.02}, {0.45, 0.68, -0.05}, {0.42, 0.70, -0.04}, {0.40, 0.72, -0.02}},
		{{0.40, 0.72, -0.02}, {0.40, 0.70, -0.05}, {0.37, 0.72, -0.04}, {0.35, 0.74, -0.02}},
	})
}

// Shifted returns h translated by (dx, dy, dz).
func Shifted(h HandLandmarks, dx, dy, dz float64) HandLandmarks {
	for i := range h.Points {
		h.Points[i].X += dx
		h.Points[i].Y += dy
		h.Points[i].Z += dz
	}
	return h
}

// Mirrored returns h flipped horizontally, as the other hand.
func Mirrored(h HandLandmarks) HandLandmarks {
	for i := range h.Points {
		h.Points[i].X = 1 - h.Points[i].X
	}
	if h.Handedness == Right {
		h.Handedness = Left
	} else {
		h.Handedness = Right
	}
	return h
}
