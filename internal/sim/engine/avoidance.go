package engine

// newVelocity computes agent i's next velocity from its preferred velocity,
// steering around neighbours (simplified reciprocal velocity obstacles).
// O(N^2); fine for the few hundred units a match holds.
func newVelocity(agents []Agent, i int) Vec2 {
	a := agents[i]
	v := a.PrefVel

	for j := range agents {
		if j == i {
			continue
		}
		o := agents[j]

		distSq := a.Pos.DistanceSquared(o.Pos)
		combined := a.Radius + o.Radius
		reach := float64(combined * 2)
		if distSq > float64(reach*reach) {
			continue
		}

		relPos := o.Pos.Sub(a.Pos)
		relVel := a.Vel.Sub(o.Vel)
		if distSq == 0 {
			// Coincident centres give no separating direction.
			continue
		}

		if distSq < float64(combined*combined) {
			push := relPos.NormalizeOrZero().Neg()
			v = v.Add(push.Scale(a.MaxSpeed))
			continue
		}

		if relVel.Dot(relPos)/distSq <= 0 {
			continue
		}
		tangent := Vec2{X: -relPos.Y, Y: relPos.X}.NormalizeOrZero()
		steer := tangent
		if v.Dot(tangent) <= 0 {
			steer = tangent.Neg()
		}
		dist := relPos.Length()
		strength := float64(2 * (1 - dist/float64(combined*3)))
		v = v.Add(steer.Scale(strength))
	}

	if v.LengthSquared() > float64(a.MaxSpeed*a.MaxSpeed) {
		v = v.NormalizeOrZero().Scale(a.MaxSpeed)
	}
	return v
}
