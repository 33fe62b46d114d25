package canvas

import "github.com/hilthontt/codenexus/internal/domain"

type updateDrawingRequest struct {
	Snapshot domain.DrawingData `json:"snapshot"`
}

type drawingResponse struct {
	Snapshot domain.DrawingData `json:"snapshot"`
}
