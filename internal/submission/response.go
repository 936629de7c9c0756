package submission

import (
	"fmt"

	"wasteportal-backend/internal/models"
)

type ImageResponse struct {
	ID          uint   `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

func ToImageResponse(img models.SubmissionImage) ImageResponse {
	url := img.URL
	if url == "" {
		url = fmt.Sprintf("/api/images/%d", img.ID)
	}
	return ImageResponse{
		ID:          img.ID,
		FileName:    img.FileName,
		ContentType: img.ContentType,
		Size:        img.Size,
		URL:         url,
	}
}

type SubmissionResponse struct {
	ID              uint                    `json:"id"`
	Kind            models.SubmissionKind   `json:"kind"`
	Reference       string                  `json:"reference"`
	FacilityID      uint                    `json:"facility_id"`
	FacilityCode    string                  `json:"facility_code,omitempty"`
	Date            string                  `json:"date"`
	Remarks         string                  `json:"remarks"`
	Status          models.SubmissionStatus `json:"status"`
	SubmittedBy     uint                    `json:"submitted_by"`
	SubmittedByName string                  `json:"submitted_by_name"`
	SubmittedAt     string                  `json:"submitted_at"`
	ReviewedBy      *uint                   `json:"reviewed_by"`
	ReviewedByName  string                  `json:"reviewed_by_name,omitempty"`
	ReviewedAt      *string                 `json:"reviewed_at"`
	RejectReason    string                  `json:"reject_reason,omitempty"`
	Values          any                     `json:"values"`
	Total           float64                 `json:"total_waste"`
	Images          []ImageResponse         `json:"images"`
}

func ToResponse(sub models.Submission, facilityCode string, images []models.SubmissionImage) SubmissionResponse {
	meta := sub.GetMeta()
	resp := SubmissionResponse{
		ID:              sub.GetID(),
		Kind:            sub.Kind(),
		Reference:       meta.Reference,
		FacilityID:      meta.FacilityID,
		FacilityCode:    facilityCode,
		Date:            meta.Date.Format("2006-01-02"),
		Remarks:         meta.Remarks,
		Status:          meta.Status,
		SubmittedBy:     meta.SubmittedBy,
		SubmittedByName: meta.SubmittedByName,
		SubmittedAt:     sub.GetCreatedAt().Format("2006-01-02 15:04:05"),
		ReviewedBy:      meta.ReviewedBy,
		ReviewedByName:  meta.ReviewedByName,
		RejectReason:    meta.RejectReason,
		Values:          sub.Values(),
		Total:           sub.Total(),
		Images:          make([]ImageResponse, 0, len(images)),
	}
	if meta.ReviewedAt != nil {
		s := meta.ReviewedAt.Format("2006-01-02 15:04:05")
		resp.ReviewedAt = &s
	}
	for _, img := range images {
		resp.Images = append(resp.Images, ToImageResponse(img))
	}
	return resp
}
