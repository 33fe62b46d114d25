package domain

import "encoding/json"

// DrawingData is an opaque canvas snapshot. It is only ever replaced whole.
type DrawingData = json.RawMessage
