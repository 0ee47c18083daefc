package engine

import "errors"

// Frame is a read-only snapshot of the spatial agents after a tick, for
// rendering collaborators.
type Frame struct {
	Tick   int         `json:"tick"`
	Agents []AgentView `json:"agents"`
}

// AgentView is how one agent is drawn.
type AgentView struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size"`
	Color string  `json:"color"`
}

// Renderer consumes frames. A simulation without one runs headless.
type Renderer interface {
	Render(f Frame) error
}

// Renderers fans a frame out to several renderers, in order.
type Renderers []Renderer

func (rs Renderers) Render(f Frame) error {
	var errs []error
	for _, r := range rs {
		if err := r.Render(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Frame captures the current positions, sizes and colours of all spatial
// agents in traversal order.
func (s *Simulation) Frame() Frame {
	f := Frame{Tick: s.Time}
	for _, a := range s.Agents() {
		p, ok := a.Position()
		if !ok {
			continue
		}
		f.Agents = append(f.Agents, AgentView{
			Index: a.index,
			X:     p.X,
			Y:     p.Y,
			Size:  a.Size,
			Color: a.Color,
		})
	}
	return f
}
