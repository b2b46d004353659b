package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/engine"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
)

// SampleService 打样服务。打样记录挂在询价单的议价状态上，写入走与议价相同的流转。
type SampleService struct {
	negotiation *NegotiationService
}

func NewSampleService(negotiation *NegotiationService) *SampleService {
	return &SampleService{negotiation: negotiation}
}

// RequestSampleInput 发起打样
type RequestSampleInput struct {
	Quantity int    `json:"quantity" binding:"required"`
	Notes    string `json:"notes"`
}

// RequestSample starts a sample round. A new round is allowed once the
// previous one was approved or rejected.
func (s *SampleService) RequestSample(ctx context.Context, id string, in RequestSampleInput, operatorID string) (*entity.Quote, error) {
	return s.negotiation.transition(ctx, id, ActionSample, operatorID, func(q entity.Quote, now time.Time) (engine.Result, error) {
		if in.Quantity <= 0 {
			return engine.Result{}, fmt.Errorf("%w: 样品数量必须大于0", entity.ErrValidation)
		}
		switch q.Status {
		case entity.StatusTrashed, entity.StatusDeclined, entity.StatusPending:
			return engine.Result{}, fmt.Errorf("%w: 状态为 %s 的询价单不能申请样品", entity.ErrInvalidTransition, q.Status)
		}
		if sr := q.Negotiation.SampleRequest; sr != nil {
			if _, open := entity.ValidSampleTransitions[sr.Status]; open {
				return engine.Result{}, fmt.Errorf("%w: 样品已处于 %s", entity.ErrInvalidTransition, sr.Status)
			}
		}
		next := q.Clone()
		next.Negotiation.SampleRequest = &entity.SampleRequest{
			Quantity:    in.Quantity,
			Notes:       in.Notes,
			Status:      entity.SampleStatusRequested,
			RequestedAt: now,
		}
		next.ModifiedAt = &now
		return engine.Result{Quote: next, From: q.Status}, nil
	})
}

// UpdateSampleStatus moves the sample along requested → shipped → received →
// approved|rejected.
func (s *SampleService) UpdateSampleStatus(ctx context.Context, id, status, operatorID string) (*entity.Quote, error) {
	return s.negotiation.transition(ctx, id, ActionSample, operatorID, func(q entity.Quote, now time.Time) (engine.Result, error) {
		sr := q.Negotiation.SampleRequest
		if sr == nil {
			return engine.Result{}, fmt.Errorf("%w: 尚未申请样品", entity.ErrInvalidTransition)
		}
		if !slices.Contains(entity.ValidSampleTransitions[sr.Status], status) {
			return engine.Result{}, fmt.Errorf("%w: 不允许从 %s 流转到 %s", entity.ErrInvalidTransition, sr.Status, status)
		}
		next := q.Clone()
		next.Negotiation.SampleRequest.Status = status
		next.Negotiation.SampleRequest.UpdatedAt = &now
		next.ModifiedAt = &now
		return engine.Result{Quote: next, From: q.Status}, nil
	})
}
