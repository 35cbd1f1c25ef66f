package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"civic-agora/apperror"
	"civic-agora/models"
)

// generic custom error types
var (
	ErrInvalidRequest = errors.New("invalid json")
)

// ErrorResponse is the standardized error structure which may be returned by any API
type ErrorResponse struct {
	Code    int32  `json:"code"`
	Message string `json:"msg"`
}

// HandleError encodes the std ErrorResponse
func HandleError(err error) (httpStatus int, apiError ErrorResponse) {

	if err == nil {
		apiError.Code = 0
		apiError.Message = ""

		return 0, apiError
	}

	fmt.Println(err)
	switch err {
	// system
	case apperror.ErrMultipleRecords:
		apiError.Code = MultipleRecords
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusInternalServerError
	case apperror.ErrRecordChanged:
		// the client should re-read and decide again
		apiError.Code = VoteConflict
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusConflict
	case apperror.ErrUnavailable:
		apiError.Code = StoreUnavailable
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusServiceUnavailable
	case apperror.ErrOutOfSync:
		// corrupted ledger is a server-side problem, not the client's
		apiError.Code = SystemError
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusInternalServerError
	// permissions
	case apperror.ErrGuest:
		apiError.Code = PermissionGuest
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusUnprocessableEntity
	case apperror.ErrDenied:
		apiError.Code = ActionDenied
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusForbidden
	// user
	case models.ErrUserNameNotAvailable:
		apiError.Code = UserNameTaken
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusUnprocessableEntity
	case models.ErrEMailAddressTaken:
		apiError.Code = EMailAddressTaken
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusUnprocessableEntity
	case models.ErrInvalidUser:
		apiError.Code = InvalidRequest
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusUnprocessableEntity
	case models.ErrInvalidPassword:
		apiError.Code = InvalidPassword
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusUnprocessableEntity
	// voting
	case models.ErrEntityNotFound:
		apiError.Code = EntityNotFound
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusNotFound
	case models.ErrEntityKindInvalid:
		apiError.Code = KindInvalid
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusUnprocessableEntity
	case models.ErrVoteTypeInvalid:
		apiError.Code = VoteInvalid
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusUnprocessableEntity
	case models.ErrNotApproved:
		apiError.Code = NotApproved
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusUnprocessableEntity
	// protest / boycott
	case models.ErrTitleMissing:
		apiError.Code = TitleMissing
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusUnprocessableEntity
	case models.ErrTargetMissing:
		apiError.Code = TargetMissing
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusUnprocessableEntity
	default:
		apiError.Code = SystemError
		apiError.Message = apiError.String(apiError.Code)
		httpStatus = http.StatusInternalServerError
	}
	return httpStatus, apiError
}

// Application Error Codes (API Errors)
const (
	// client/api
	InvalidJSON int32 = (10000 + iota)
	InvalidRequest
	InvalidLogin
	DuplicateRequest
	// generic system
	MultipleRecords
	ActionDenied
	StoreUnavailable
	// permission
	PermissionGuest
	// user
	UserNameTaken
	EMailAddressTaken
	InvalidPassword
	// voting
	EntityNotFound
	KindInvalid
	VoteInvalid
	VoteConflict
	NotApproved
	// protest / boycott
	TitleMissing
	TargetMissing
	SystemError = 99999
)

func (er ErrorResponse) String(code int32) string {
	msg := ""
	switch code {
	// common (system)
	case InvalidJSON:
		msg = "Invalid JSON"
	case InvalidRequest:
		msg = "Invalid Request" // JSON was correct, data was not
	case InvalidLogin:
		msg = "invalid user name or password"
	case DuplicateRequest:
		msg = "request was already processed"
	case MultipleRecords:
		msg = "multiple records found"
	case ActionDenied:
		msg = "update/delete action not allowed"
	case StoreUnavailable:
		msg = "store not available, try again later"
	// permission (item access)
	case PermissionGuest:
		msg = "user is guest"
	// user
	case UserNameTaken:
		msg = "user name is not available"
	case EMailAddressTaken:
		msg = "email-address is already used"
	case InvalidPassword:
		msg = "password does not meet rules"
	// voting
	case EntityNotFound:
		msg = "entity does not exist"
	case KindInvalid:
		msg = "unknown votable kind"
	case VoteInvalid:
		msg = "vote must be support or opposition"
	case VoteConflict:
		msg = "vote changed concurrently, refresh and retry"
	case NotApproved:
		msg = "entity has not been approved for voting"
	// protest / boycott
	case TitleMissing:
		msg = "title is required"
	case TargetMissing:
		msg = "boycott target is required"
	case SystemError:
		msg = "Server Problem"
	}

	return msg
}
