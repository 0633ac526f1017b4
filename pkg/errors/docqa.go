package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Document QA pipeline errors (service 21).
var (
	// ErrInvalidChunking: chunk size and overlap cannot produce an advancing window.
	ErrInvalidChunking = Register(&Errno{
		Code:      MakeCode(ServiceDocQA, CategoryConfig, 1),
		HTTP:      http.StatusBadRequest,
		GRPCCode:  codes.InvalidArgument,
		MessageEN: "Invalid chunking configuration",
		MessageZH: "分块配置无效",
	})

	ErrEmptyDocument = Register(&Errno{
		Code:      MakeCode(ServiceDocQA, CategoryRequest, 1),
		HTTP:      http.StatusBadRequest,
		GRPCCode:  codes.InvalidArgument,
		MessageEN: "Document contains no text",
		MessageZH: "文档没有可用文本",
	})

	ErrEmptyQuery = Register(&Errno{
		Code:      MakeCode(ServiceDocQA, CategoryRequest, 2),
		HTTP:      http.StatusBadRequest,
		GRPCCode:  codes.InvalidArgument,
		MessageEN: "Query must not be empty",
		MessageZH: "查询内容不能为空",
	})

	// ErrDocumentNotFound: the document has no stored chunks.
	ErrDocumentNotFound = Register(&Errno{
		Code:      MakeCode(ServiceDocQA, CategoryResource, 1),
		HTTP:      http.StatusNotFound,
		GRPCCode:  codes.NotFound,
		MessageEN: "Document not found",
		MessageZH: "文档不存在",
	})

	// ErrPartialIngestion: vectors were written but the metadata was not.
	ErrPartialIngestion = Register(&Errno{
		Code:      MakeCode(ServiceDocQA, CategoryConflict, 1),
		HTTP:      http.StatusInternalServerError,
		GRPCCode:  codes.Aborted,
		MessageEN: "Partial ingestion, vectors require reconciliation",
		MessageZH: "部分入库失败，向量需要对账处理",
	})

	// ErrContractViolation: a dependency answered with a shape the pipeline cannot trust.
	ErrContractViolation = Register(&Errno{
		Code:      MakeCode(ServiceDocQA, CategoryInternal, 1),
		HTTP:      http.StatusBadGateway,
		GRPCCode:  codes.DataLoss,
		MessageEN: "Upstream contract violation",
		MessageZH: "上游服务返回结果不符合约定",
	})

	ErrEmbeddingRejected = Register(&Errno{
		Code:      MakeCode(ServiceDocQA, CategoryInternal, 2),
		HTTP:      http.StatusBadGateway,
		GRPCCode:  codes.InvalidArgument,
		MessageEN: "Embedding provider rejected the input",
		MessageZH: "向量化服务拒绝了输入",
	})

	ErrExpansionMalformed = Register(&Errno{
		Code:      MakeCode(ServiceDocQA, CategoryInternal, 3),
		HTTP:      http.StatusBadGateway,
		GRPCCode:  codes.Internal,
		MessageEN: "Query expansion output is not a string array",
		MessageZH: "查询扩展结果不是字符串数组",
	})

	ErrEmbeddingUnavailable = Register(&Errno{
		Code:      MakeCode(ServiceDocQA, CategoryNetwork, 1),
		HTTP:      http.StatusBadGateway,
		GRPCCode:  codes.Unavailable,
		MessageEN: "Embedding provider unavailable",
		MessageZH: "向量化服务不可用",
	})

	ErrVectorIndexUnavailable = Register(&Errno{
		Code:      MakeCode(ServiceDocQA, CategoryNetwork, 2),
		HTTP:      http.StatusServiceUnavailable,
		GRPCCode:  codes.Unavailable,
		MessageEN: "Vector index unavailable",
		MessageZH: "向量索引不可用",
	})

	ErrMetadataUnavailable = Register(&Errno{
		Code:      MakeCode(ServiceDocQA, CategoryNetwork, 3),
		HTTP:      http.StatusServiceUnavailable,
		GRPCCode:  codes.Unavailable,
		MessageEN: "Metadata store unavailable",
		MessageZH: "元数据存储不可用",
	})

	ErrCompletionUnavailable = Register(&Errno{
		Code:      MakeCode(ServiceDocQA, CategoryNetwork, 4),
		HTTP:      http.StatusBadGateway,
		GRPCCode:  codes.Unavailable,
		MessageEN: "Completion provider unavailable",
		MessageZH: "生成服务不可用",
	})
)
