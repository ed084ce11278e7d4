package light

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/bioglaze/aether3d-sub000/common"
)

// sphere is a light bound in view space.
type sphere struct {
	center common.Vec3
	radius float32
}

// cullInput is everything one culling pass reads. Lights are already in view space.
type cullInput struct {
	invProj          common.Mat4
	points           []sphere
	spots            []sphere
	tilesX, tilesY   uint32
	width, height    int
	maxLightsPerTile int
	near, far        float32
	// depth holds the linear view depth of every pixel, row-major. Nil culls against [near, far].
	depth []float32
}

// depthRange returns the view depth range covered by a tile.
func (in *cullInput) depthRange(tx, ty uint32) (float32, float32) {
	if in.depth == nil {
		return in.near, in.far
	}
	x0, y0 := int(tx*TileSize), int(ty*TileSize)
	x1, y1 := min(x0+TileSize, in.width), min(y0+TileSize, in.height)
	lo, hi := in.far, in.near
	for y := y0; y < y1; y++ {
		for _, d := range in.depth[y*in.width+x0 : y*in.width+x1] {
			d = min(max(d, in.near), in.far)
			lo, hi = min(lo, d), max(hi, d)
		}
	}
	if lo > hi {
		return in.near, in.far
	}
	return lo, hi
}

// cullRow fills the index lists of one tile row and returns the number of indices written.
func (in *cullInput) cullRow(ty uint32, out []uint32) int {
	assigned := 0
	for tx := uint32(0); tx < in.tilesX; tx++ {
		base := (int(ty)*int(in.tilesX) + int(tx)) * in.maxLightsPerTile
		list := out[base : base+in.maxLightsPerTile]
		minDepth, maxDepth := in.depthRange(tx, ty)
		slab := TileFrustum(in.invProj, tx, ty, in.width, in.height, minDepth, maxDepth)

		n := 0
		for i, s := range in.points {
			if n == len(list) {
				break
			}
			if slab.IntersectsSphere(s.center, s.radius) {
				list[n] = uint32(i)
				n++
			}
		}
		for j, s := range in.spots {
			if n == len(list) {
				break
			}
			if slab.IntersectsSphere(s.center, s.radius) {
				list[n] = uint32(len(in.points) + j)
				n++
			}
		}
		for i := n; i < len(list); i++ {
			list[i] = LightListEnd
		}
		assigned += n
	}
	return assigned
}

// cpuCuller runs the tile culling algorithm on the CPU, one worker pool task per tile row.
type cpuCuller struct {
	pool worker.DynamicWorkerPool
}

func newCPUCuller(workers int) *cpuCuller {
	return &cpuCuller{pool: worker.NewDynamicWorkerPool(workers, 256, 1*time.Second)}
}

// cull writes every tile list of out and blocks until all rows are done.
//
// Parameters:
//   - in: the culling input
//   - out: tilesX*tilesY*maxLightsPerTile entries
//
// Returns:
//   - int: the number of light indices written over all tiles
func (c *cpuCuller) cull(in *cullInput, out []uint32) int {
	rows := make([]int, in.tilesY)
	var wg sync.WaitGroup
	for ty := uint32(0); ty < in.tilesY; ty++ {
		wg.Add(1)
		row := ty // capture for closure
		c.pool.SubmitTask(worker.Task{
			ID: int(row),
			Do: func() (any, error) {
				defer wg.Done()
				rows[row] = in.cullRow(row, out)
				return nil, nil
			},
		})
	}
	wg.Wait()

	total := 0
	for _, n := range rows {
		total += n
	}
	return total
}

func (c *cpuCuller) stop() {
	c.pool.Stop()
}
