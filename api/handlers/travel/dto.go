package travel

// CreateTravelRequest 创建差旅单请求
type CreateTravelRequest struct {
	Destination   string  `json:"destination" binding:"required"`
	Purpose       string  `json:"purpose"`
	StartDate     string  `json:"start_date" binding:"required"` // YYYY-MM-DD
	EndDate       string  `json:"end_date" binding:"required"`   // YYYY-MM-DD
	EstimatedCost float64 `json:"estimated_cost" binding:"gte=0"`
	Priority      string  `json:"priority" binding:"omitempty,oneof=low normal high"`
}
