package engine

import (
	"container/heap"
	"math"
)

const (
	costWalkable = 1
	costWall     = 255
)

// FlowField is a grid vector field pointing every walkable cell one step
// downhill toward the current target (4-way Dijkstra integration field).
type FlowField struct {
	Width       int
	Height      int
	Costs       []uint8
	Integration []float64
	Vectors     []Vec2

	Target    [2]int
	HasTarget bool
}

func NewFlowField(width, height int) *FlowField {
	size := width * height
	f := &FlowField{
		Width:       width,
		Height:      height,
		Costs:       make([]uint8, size),
		Integration: make([]float64, size),
		Vectors:     make([]Vec2, size),
	}
	for i := range f.Costs {
		f.Costs[i] = costWalkable
		f.Integration[i] = math.MaxFloat64
	}
	return f
}

// Cell maps a world coordinate to its grid cell.
func (f *FlowField) Cell(x, y float64) (int, int, bool) {
	cx := math.Round(x)
	cy := math.Round(y)
	if cx < 0 || cy < 0 || cx >= float64(f.Width) || cy >= float64(f.Height) {
		return 0, 0, false
	}
	return int(cx), int(cy), true
}

func (f *FlowField) SetObstacle(x, y int, wall bool) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	if wall {
		f.Costs[y*f.Width+x] = costWall
	} else {
		f.Costs[y*f.Width+x] = costWalkable
	}
}

// GenerateTarget rebuilds the integration and vector fields toward (x, y).
// Targets outside the grid leave the field untouched.
func (f *FlowField) GenerateTarget(x, y float64) {
	tx, ty, ok := f.Cell(x, y)
	if !ok {
		return
	}
	for i := range f.Integration {
		f.Integration[i] = math.MaxFloat64
	}
	target := ty*f.Width + tx
	f.Integration[target] = 0
	f.Target = [2]int{tx, ty}
	f.HasTarget = true

	pq := &cellQueue{{cost: 0, index: target}}
	neighbors := [4][2]int{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(cellCost)
		if cur.cost > f.Integration[cur.index] {
			continue
		}
		cx := cur.index % f.Width
		cy := cur.index / f.Width
		for _, d := range neighbors {
			nx, ny := cx+d[0], cy+d[1]
			if nx < 0 || ny < 0 || nx >= f.Width || ny >= f.Height {
				continue
			}
			n := ny*f.Width + nx
			c := f.Costs[n]
			if c >= costWall {
				continue
			}
			next := cur.cost + float64(c)
			if next < f.Integration[n] {
				f.Integration[n] = next
				heap.Push(pq, cellCost{cost: next, index: n})
			}
		}
	}
	f.generateVectors()
}

func (f *FlowField) generateVectors() {
	dirs := [4]struct {
		dx, dy int
		v      Vec2
	}{
		{0, -1, Vec2{X: 0, Y: -1}},
		{1, 0, Vec2{X: 1, Y: 0}},
		{0, 1, Vec2{X: 0, Y: 1}},
		{-1, 0, Vec2{X: -1, Y: 0}},
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			idx := y*f.Width + x
			if f.Costs[idx] >= costWall {
				f.Vectors[idx] = Vec2{}
				continue
			}
			best := f.Integration[idx]
			grad := Vec2{}
			for _, d := range dirs {
				nx, ny := x+d.dx, y+d.dy
				if nx < 0 || ny < 0 || nx >= f.Width || ny >= f.Height {
					continue
				}
				if c := f.Integration[ny*f.Width+nx]; c < best {
					best = c
					grad = d.v
				}
			}
			f.Vectors[idx] = grad
		}
	}
}

// Direction samples the field; outside the grid it is zero.
func (f *FlowField) Direction(x, y float64) Vec2 {
	cx, cy, ok := f.Cell(x, y)
	if !ok {
		return Vec2{}
	}
	return f.Vectors[cy*f.Width+cx]
}

type cellCost struct {
	cost  float64
	index int
}

// cellQueue is a min-heap on cost; ties break on index so pops are reproducible.
type cellQueue []cellCost

func (q cellQueue) Len() int { return len(q) }
func (q cellQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].index < q[j].index
}
func (q cellQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *cellQueue) Push(x any)   { *q = append(*q, x.(cellCost)) }
func (q *cellQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
