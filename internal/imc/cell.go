package imc

// Cell is the basic geometry unit: a cartesian brick holding the opacity data
// read during transport and the boundary information for each face. Nodes are
// stored as [x_lo, x_hi, y_lo, y_hi, z_lo, z_hi].
type Cell struct {
	ID     uint32 // global id
	Region int
	Nodes  [6]float64
	BC     [6]BCType
	Next   [6]uint32 // global id of the cell across each face

	// Set each step from the region properties and current temperature.
	OpA float64 // absorption opacity
	OpS float64 // scattering opacity
	F   float64 // Fleck factor

	T float64 // material temperature
}

func sgn(v float64) int {
	if v > 0 {
		return 1
	}
	return 0
}

// DistanceToBoundary returns the distance to the nearest face along dir and
// the face that will be crossed. Only the face in the sign of travel is
// checked on each axis; an axis with no direction component is skipped.
func (c *Cell) DistanceToBoundary(pos, dir Vec3) (float64, Face) {
	minDist := 1.0e16
	face := XNeg
	for i := 0; i < 3; i++ {
		if dir[i] == 0 {
			continue
		}
		index := 2*i + sgn(dir[i])
		dist := (c.Nodes[index] - pos[i]) / dir[i]
		if dist < minDist {
			minDist = dist
			face = Face(index)
		}
	}
	return minDist, face
}

// Volume returns the cell volume.
func (c *Cell) Volume() float64 {
	return (c.Nodes[1] - c.Nodes[0]) * (c.Nodes[3] - c.Nodes[2]) * (c.Nodes[5] - c.Nodes[4])
}

// UniformPosition samples a position uniformly inside the cell.
func (c *Cell) UniformPosition(rng *RNG) Vec3 {
	return Vec3{
		c.Nodes[0] + rng.Uniform()*(c.Nodes[1]-c.Nodes[0]),
		c.Nodes[2] + rng.Uniform()*(c.Nodes[3]-c.Nodes[2]),
		c.Nodes[4] + rng.Uniform()*(c.Nodes[5]-c.Nodes[4]),
	}
}

// InCell reports whether pos lies inside the cell bounds (diagnostic only).
func (c *Cell) InCell(pos Vec3) bool {
	for i := 0; i < 3; i++ {
		if pos[i] < c.Nodes[2*i] || pos[i] > c.Nodes[2*i+1] {
			return false
		}
	}
	return true
}
