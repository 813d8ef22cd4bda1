package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如配对已被删除但导出可继续）
// - 5xxx：系统错误（需要中断流程）
const (
	OK             = 0
	PairMissing    = 4004
	UploadRejected = 4013
	SystemError    = 5000
	RenderFailed   = 5001
	CatalogFailed  = 5002
)
