package publications

// Payload for the preview adjustment endpoint. Direction moves the preview
// one image forward or back.
type AdjustPreviewPayload struct {
	Direction int `json:"direction" validate:"required,oneof=-1 1"`
}
