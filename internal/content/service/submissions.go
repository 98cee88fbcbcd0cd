package service

import (
	"context"
	"strings"

	"github.com/higai/site-admin/internal/content"
)

// Submissions coming from the public site.

type ContactRequest struct {
	CompanyName string `json:"companyName" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Message     string `json:"message" validate:"required"`
}

type CareerApplication struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

// Review is the public "leave a review" form. Ratings of three or less are
// kept as private feedback; higher ratings become pending testimonials and
// need the reviewer's details.
type Review struct {
	Rating          int    `json:"rating" validate:"required,min=1,max=5"`
	Feedback        string `json:"feedback"`
	TestimonialText string `json:"testimonialText"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	JobTitle        string `json:"jobTitle"`
	CompanyName     string `json:"companyName"`
	Website         string `json:"website" validate:"omitempty,url"`
}

// testimonialDetails is checked only for positive reviews.
type testimonialDetails struct {
	Name        string `validate:"required"`
	Email       string `validate:"required,email"`
	JobTitle    string `validate:"required"`
	CompanyName string `validate:"required"`
}

// PositiveRating is the lowest rating published as a testimonial.
const PositiveRating = 4

type ReviewResult struct {
	// Collection is where the review was stored: feedback or testimonials.
	Collection string           `json:"collection"`
	Document   content.Document `json:"document"`
}

func (s *contentService) SubmitContact(ctx context.Context, req ContactRequest) (content.Document, error) {
	req.CompanyName, req.Email, req.Message = strings.TrimSpace(req.CompanyName), strings.TrimSpace(req.Email), strings.TrimSpace(req.Message)
	if err := s.validate.v.Struct(req); err != nil {
		return content.Document{}, structErrors(err)
	}
	return s.create(ctx, content.CollectionContact, map[string]any{
		"companyName": req.CompanyName,
		"email":       req.Email,
		"message":     req.Message,
	})
}

func (s *contentService) SubmitCareer(ctx context.Context, req CareerApplication) (content.Document, error) {
	req.Name, req.Email, req.Role = strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), strings.TrimSpace(req.Role)
	if err := s.validate.v.Struct(req); err != nil {
		return content.Document{}, structErrors(err)
	}
	return s.create(ctx, content.CollectionCareers, map[string]any{
		"name":  req.Name,
		"email": req.Email,
		"role":  req.Role,
	})
}

func (s *contentService) SubmitReview(ctx context.Context, req Review) (ReviewResult, error) {
	if err := s.validate.v.Struct(req); err != nil {
		return ReviewResult{}, structErrors(err)
	}
	if req.Rating < PositiveRating {
		fb := strings.TrimSpace(req.Feedback)
		if fb == "" {
			return ReviewResult{}, &ValidationError{Fields: map[string]string{"feedback": "is required"}}
		}
		d, err := s.create(ctx, content.CollectionFeedback, map[string]any{
			content.FieldRating: req.Rating,
			"feedback":          fb,
		})
		if err != nil {
			return ReviewResult{}, err
		}
		return ReviewResult{Collection: content.CollectionFeedback, Document: d}, nil
	}

	details := testimonialDetails{
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		JobTitle:    strings.TrimSpace(req.JobTitle),
		CompanyName: strings.TrimSpace(req.CompanyName),
	}
	if err := s.validate.v.Struct(details); err != nil {
		return ReviewResult{}, structErrors(err)
	}
	d, err := s.create(ctx, content.CollectionTestimonials, map[string]any{
		"name":              details.Name,
		"email":             details.Email,
		"jobTitle":          details.JobTitle,
		"companyName":       details.CompanyName,
		"website":           strings.TrimSpace(req.Website),
		content.FieldRating: req.Rating,
		"testimonialText":   strings.TrimSpace(req.TestimonialText),
		content.FieldStatus: content.StatusPending,
	})
	if err != nil {
		return ReviewResult{}, err
	}
	return ReviewResult{Collection: content.CollectionTestimonials, Document: d}, nil
}
