package common

// Key codes delivered by window key callbacks for the camera controls. Printable keys use their
// uppercase ASCII value, as GLFW does.
const (
	KeyW = 'W' // forward
	KeyS = 'S' // back
	KeyA = 'A' // left
	KeyD = 'D' // right
	KeyQ = 'Q' // up
	KeyE = 'E' // down
)
