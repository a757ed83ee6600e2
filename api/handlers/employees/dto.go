package employees

// SaveEmployeeRequest 保存员工档案请求
type SaveEmployeeRequest struct {
	ID         string `json:"id" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Department string `json:"department"`
	Title      string `json:"title"`
	ManagerID  string `json:"manager_id"`
	Status     string `json:"status" binding:"omitempty,oneof=active on_leave inactive"`
}
