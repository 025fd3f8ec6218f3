package backend

import (
	"context"
	"errors"
	"fmt"

	"intake-chat/pkg"
)

// Function names of the intake cloud functions.
const (
	FnProcessMessage          = "processMessage"
	FnProcessMedicationImage  = "processMedicationImage"
	FnDoctorSummaryAndQA      = "doctorSummaryAndQA"
	FnGenerateRecommendations = "generateRecommendations"
	FnGenerateFollowUp        = "generateFollowUp"
	FnQueryPatientMedications = "queryPatientMedications"
)

// Image is a medication photo uploaded by the patient.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Client defines the remote calls required by the chat service and the
// doctor desk. Each call is attempted exactly once.
type Client interface {
	ProcessMessage(ctx context.Context, req pkg.ProcessMessageRequest) (*pkg.ProcessMessageResponse, error)
	ProcessMedicationImage(ctx context.Context, img Image) (*pkg.MedicationImageResponse, error)
	DoctorSummaryAndQA(ctx context.Context, req pkg.DoctorRequest) (*pkg.DoctorResponse, error)
	GenerateRecommendations(ctx context.Context, record pkg.PatientRecord) (*pkg.RecommendationsResponse, error)
	GenerateFollowUp(ctx context.Context) (*pkg.FollowUpResponse, error)
	QueryPatientMedications(ctx context.Context, patientID string) (*pkg.MedicationLookupResponse, error)
}

// StatusError reports a non-2xx reply from a cloud function.
type StatusError struct {
	Function   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP error status %d", e.Function, e.StatusCode)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
