package response

import (
	"net/http"

	"clubpoints/internal/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeInvalidState      = 1001 // 重复结算、已锁定、钱包停用
	CodeInsufficientFunds = 1002
	CodeConflict          = 1003
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

// CodeOf 按错误分类返回业务码，无法归类的按服务器错误处理
func CodeOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.ErrInvalidArgument:
		return CodeParamError
	case apperr.ErrNotFound:
		return CodeNotFound
	case apperr.ErrInvalidState:
		return CodeInvalidState
	case apperr.ErrInsufficientFunds:
		return CodeInsufficientFunds
	case apperr.ErrConflict:
		return CodeConflict
	default:
		return CodeServerError
	}
}

// FromError 业务错误原样返回描述，未知错误只返回通用提示
func FromError(c *gin.Context, err error) {
	code := CodeOf(err)
	if code == CodeServerError {
		_ = c.Error(err)
		ServerError(c, "服务器内部错误")
		return
	}
	Error(c, code, err.Error())
}
