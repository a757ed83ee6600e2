package common

// APIResponse 成功响应的统一包装
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse 失败响应的统一包装
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ListResponse 分页列表数据
type ListResponse struct {
	Items      interface{}    `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// PaginationMeta 分页元信息
type PaginationMeta struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int   `json:"total_page"`
}
