package renderer

// Stats holds per-frame counters and cumulative totals of a renderer.
type Stats struct {
	// Frame is the index of the frame the counters belong to.
	Frame uint64

	// Per-frame counters, reset by BeginFrame.
	Draws        int
	Dispatches   int
	Passes       int
	PassRestarts int
	// Barriers and RingSlots are filled by Present.
	Barriers  int
	RingSlots int

	// Light culling of the frame's CullLights.
	PointLights      int
	SpotLights       int
	DroppedLights    int
	LightAssignments int
	CulledOnGPU      bool

	// Totals.
	PipelineBuilds int
	Pipelines      int
	BindGroups     int
	// RetiredBindGroups counts heap slots whose bind group referenced a destroyed resource.
	RetiredBindGroups int
	LiveResources     int
	// FenceValue is the fence value signaled by the last Present.
	FenceValue uint64
}

func (s *Stats) beginFrame(frame uint64) {
	fence := s.FenceValue
	*s = Stats{Frame: frame, FenceValue: fence}
}
