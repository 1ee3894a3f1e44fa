package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CameraState is a Y-up fly camera. Yaw and Pitch are in radians.
type CameraState struct {
	Position    mgl32.Vec3
	Yaw         float32
	Pitch       float32
	Speed       float32
	Sensitivity float32
	FovY        float32
	Near        float32
	Far         float32
}

func NewCameraState() *CameraState {
	return &CameraState{
		Position:    mgl32.Vec3{0, 1.7, 0},
		Speed:       8.0,
		Sensitivity: 0.003,
		FovY:        mgl32.DegToRad(60),
		Near:        0.1,
		Far:         500.0,
	}
}

func (c *CameraState) GetForward() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Sin(float64(c.Yaw)) * math.Cos(float64(c.Pitch))),
		float32(math.Sin(float64(c.Pitch))),
		float32(-math.Cos(float64(c.Yaw)) * math.Cos(float64(c.Pitch))),
	}
}

func (c *CameraState) GetRight() mgl32.Vec3 {
	return c.GetForward().Cross(mgl32.Vec3{0, 1, 0}).Normalize()
}

func (c *CameraState) GetViewMatrix() mgl32.Mat4 {
	eye := c.Position
	return mgl32.LookAtV(eye, eye.Add(c.GetForward()), mgl32.Vec3{0, 1, 0})
}

func (c *CameraState) GetProjectionMatrix(aspect float32) mgl32.Mat4 {
	if aspect == 0 {
		aspect = 1.0
	}
	return mgl32.Perspective(c.FovY, aspect, c.Near, c.Far)
}

// Move applies a local-space movement (x right, y up, z forward) scaled by
// Speed*dt, and a look delta scaled by Sensitivity.
func (c *CameraState) Move(move mgl32.Vec3, lookX, lookY, dt float32) {
	c.Yaw += lookX * c.Sensitivity
	c.Pitch -= lookY * c.Sensitivity

	const maxPitch = 89.0 * math.Pi / 180.0
	if c.Pitch > maxPitch {
		c.Pitch = maxPitch
	}
	if c.Pitch < -maxPitch {
		c.Pitch = -maxPitch
	}

	forward := c.GetForward()
	right := c.GetRight()
	up := mgl32.Vec3{0, 1, 0}

	dir := right.Mul(move[0]).Add(up.Mul(move[1])).Add(forward.Mul(move[2]))
	if dir.Len() > 0 {
		c.Position = c.Position.Add(dir.Normalize().Mul(c.Speed * dt))
	}
}
