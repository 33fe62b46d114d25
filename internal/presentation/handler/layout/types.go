package layout

import "github.com/hilthontt/codenexus/internal/domain"

type updateLayoutRequest struct {
	SelectView     *domain.View          `json:"selectView"`
	SidebarOpen    *bool                 `json:"sidebarOpen"`
	Activity       *domain.ActivityState `json:"activityState"`
	ToggleActivity bool                  `json:"toggleActivity"`
}
