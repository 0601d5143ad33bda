package protocol

// update (server -> viewer): one applied paint.
type UpdateMsg struct {
	Type  string `json:"type"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	Color uint8  `json:"color"`
}

func NewUpdate(x, y, z int, color uint8) UpdateMsg {
	return UpdateMsg{Type: TypeUpdate, X: x, Y: y, Z: z, Color: color}
}

// POST /api/place/draw
type DrawRequest struct {
	ID    string `json:"id"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	Color int    `json:"color"`
}

type DrawResponse struct {
	Username       string `json:"username"`
	CooldownExpiry int64  `json:"cooldownExpiry"`
}

// POST /api/place/username
type CellRequest struct {
	ID string `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
	Z  int    `json:"z"`
}

// POST /api/place/create
type CreatePlaceRequest struct {
	Name     string `json:"name"`
	Size     [3]int `json:"size"`
	Palette  int64  `json:"palette"`
	// Cooldown in seconds; omitted means the server default.
	Cooldown *int64 `json:"cooldown,omitempty"`
	Seed     bool   `json:"seed"`
}

type CreatePlaceResponse struct {
	ID      string `json:"id"`
	VoxelID string `json:"voxel_id"`
}

// POST /api/place/online
type OnlineRequest struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
}

// GET /api/place/infos entry. Ids are strings since they exceed the safe
// integer range of JS clients.
type PlaceInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        [3]int `json:"size"`
	Palette     string `json:"palette"`
	Online      bool   `json:"online"`
	OnlineUsers int    `json:"online_users"`
	Cooldown    int64  `json:"cooldown"`
	Painted     int    `json:"painted"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
