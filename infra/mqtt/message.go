package mqtt

import "github.com/prtline/sortation/core/model"

// RequestMessage is a routing request from a sorter controller.
type RequestMessage struct {
	SorterID      int    `json:"sorter_id"`
	TransactionID int    `json:"transaction_id"`
	Barcode       string `json:"barcode"`
	Timestamp     int64  `json:"timestamp"`
}

// ResponseMessage answers a routing request with the gate to open.
type ResponseMessage struct {
	ResponseID    string `json:"response_id"`
	TransactionID int    `json:"transaction_id"`
	Barcode       string `json:"barcode"`
	Destination   int    `json:"destination"`
	Gate          int    `json:"gate"`
	Timestamp     int64  `json:"timestamp"`
}

// ReportMessage carries the tracking flags a sorter reports after a cart has
// passed.
type ReportMessage struct {
	SorterID  int               `json:"sorter_id"`
	Barcode   string            `json:"barcode"`
	Flags     model.ReportFlags `json:"flags"`
	Timestamp int64             `json:"timestamp"`
}

// RemovalMessage records an operator-initiated extraction.
type RemovalMessage struct {
	Barcode   string `json:"barcode"`
	Area      int    `json:"area"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorMessage is published in place of a response when a request is
// rejected.
type ErrorMessage struct {
	TransactionID int    `json:"transaction_id"`
	Barcode       string `json:"barcode"`
	Error         string `json:"error"`
	Timestamp     int64  `json:"timestamp"`
}
