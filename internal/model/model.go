// Package model は、ダウンロード対象と処理結果を表すデータ型を定義します。
package model

import "fmt"

// OutcomeStatus は、単一URLの処理結果の種別です。
type OutcomeStatus int

const (
	StatusSuccess          OutcomeStatus = iota // 保存成功
	StatusRejectedNotImage                      // Content-Typeが画像ではない
	StatusHTTPError                             // 200以外のステータス
	StatusNetworkError                          // 通信エラー、またはその他の予期せぬエラー
)

// String は OutcomeStatus を人間可読な文字列に変換します。
func (s OutcomeStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRejectedNotImage:
		return "not_image"
	case StatusHTTPError:
		return "http_error"
	case StatusNetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

// DownloadOutcome は、1つのURLに対する最終的な処理結果です。
// 生成後に変更されることはありません。
type DownloadOutcome struct {
	URL           string
	Status        OutcomeStatus
	SavedFilename string // StatusSuccess の場合のみ
	StatusCode    int    // StatusHTTPError の場合のみ
	Message       string // StatusNetworkError の場合のみ
	BytesWritten  int64  // StatusSuccess の場合のみ
}

// Success は保存に成功した結果を生成します。
func Success(url, filename string, size int64) DownloadOutcome {
	return DownloadOutcome{URL: url, Status: StatusSuccess, SavedFilename: filename, BytesWritten: size}
}

// RejectedNotImage は画像以外のレスポンスを受け取った結果を生成します。
func RejectedNotImage(url string) DownloadOutcome {
	return DownloadOutcome{URL: url, Status: StatusRejectedNotImage}
}

// HTTPError は200以外のステータスを受け取った結果を生成します。
func HTTPError(url string, code int) DownloadOutcome {
	return DownloadOutcome{URL: url, Status: StatusHTTPError, StatusCode: code}
}

// NetworkError は通信エラー等で失敗した結果を生成します。
func NetworkError(url, message string) DownloadOutcome {
	return DownloadOutcome{URL: url, Status: StatusNetworkError, Message: message}
}

// OK は結果が成功かどうかを返します。
func (o DownloadOutcome) OK() bool {
	return o.Status == StatusSuccess
}

// Reason は失敗理由を一行で返します。成功時は保存したファイル名を返します。
func (o DownloadOutcome) Reason() string {
	switch o.Status {
	case StatusSuccess:
		return o.SavedFilename
	case StatusRejectedNotImage:
		return "画像ではありません"
	case StatusHTTPError:
		return fmt.Sprintf("HTTP %d", o.StatusCode)
	case StatusNetworkError:
		return "エラー: " + o.Message
	default:
		return "不明な結果"
	}
}

// UnitState は、単一ダウンロード処理の進行状態です。
// Pending → Requesting → Validating → Saving → Done の順にのみ遷移します。
type UnitState int

const (
	StatePending UnitState = iota
	StateRequesting
	StateValidating
	StateSaving
	StateDone
)

func (s UnitState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRequesting:
		return "requesting"
	case StateValidating:
		return "validating"
	case StateSaving:
		return "saving"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
