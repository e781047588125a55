package main

// Circle is anything with a circular hitbox and a heading
type Circle interface {
	Position() (x, y float64)
	Heading() float64
	Radius() float64
}

// Overlaps reports whether two circles intersect. Touching circles do not.
func Overlaps(a, b Circle) bool {
	ax, ay := a.Position()
	bx, by := b.Position()
	return CheckCollision(ax, ay, a.Radius(), bx, by, b.Radius())
}

// CheckCollision checks if two circles overlap
func CheckCollision(x1, y1, r1, x2, y2, r2 float64) bool {
	dx := x2 - x1
	dy := y2 - y1
	dist2 := dx*dx + dy*dy
	radSum := r1 + r2
	return dist2 < radSum*radSum
}
