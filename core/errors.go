package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX），可穿透 fmt.Errorf("%w") 包装
//
// 传播策略：
//   - MODEL_NOT_LOADED / DIMENSION_MISMATCH：加载期致命，服务期 fail-closed
//   - INVALID_INPUT：调用方参数错误，直接拒绝
//   - UNAVAILABLE：缓存等可选依赖不可用，只在内部记录，不向上传播
type DomainError struct {
	Code    string // 错误代码（如 "MODEL_NOT_LOADED", "INVALID_INPUT"）
	Message string // 错误消息
	Module  string // 模块名称（如 "model", "cache", "service"）
}

func (e *DomainError) Error() string {
	return e.Module + ": " + e.Message
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的 DomainError，如果没有则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// Errorf 以格式化消息创建领域错误
func Errorf(module, code, format string, args ...any) *DomainError {
	return NewDomainError(module, code, fmt.Sprintf(format, args...))
}

// 错误代码常量
const (
	ErrorCodeModelNotLoaded    = "MODEL_NOT_LOADED"   // 模型未加载
	ErrorCodeDimensionMismatch = "DIMENSION_MISMATCH" // 维度不一致
	ErrorCodeInvalidInput      = "INVALID_INPUT"      // 输入无效
	ErrorCodeUnavailable       = "UNAVAILABLE"        // 依赖不可用
	ErrorCodeNotFound          = "NOT_FOUND"          // 资源不存在
	ErrorCodeInternalError     = "INTERNAL_ERROR"     // 内部错误
)

// 模块名称常量
const (
	ModuleCatalog = "catalog"
	ModuleMatrix  = "matrix"
	ModuleModel   = "model"
	ModuleRank    = "rank"
	ModuleStore   = "store"
	ModuleCache   = "cache"
	ModuleService = "service"
	ModuleAPI     = "api"
)

// ErrStoreNotFound 表示 key 不存在（缓存未命中）。
var ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "key not found")

// ErrModelNotLoaded 在任何快照加载成功之前由服务调用返回。
var ErrModelNotLoaded = NewDomainError(ModuleService, ErrorCodeModelNotLoaded, "model not loaded")

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsModelNotLoaded 检查错误是否为 MODEL_NOT_LOADED
func IsModelNotLoaded(err error) bool { return hasCode(err, ErrorCodeModelNotLoaded) }

// IsDimensionMismatch 检查错误是否为 DIMENSION_MISMATCH
func IsDimensionMismatch(err error) bool { return hasCode(err, ErrorCodeDimensionMismatch) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }
