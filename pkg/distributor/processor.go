package distributor

import (
	"context"
	"fmt"
	"math"
	"sort"

	models "github.com/adchain-network/settlements/pkg/db/models/ledger"
	"go.uber.org/zap"
)

// LicenseReader supplies the license fee fraction and the license-fee
// destination account.
type LicenseReader interface {
	GetFee(ctx context.Context) (float64, error)
	GetAddress(ctx context.Context) (string, error)
}

// FeeSchedule holds the two fee fractions deducted from every event share.
type FeeSchedule struct {
	LicenseFee  float64
	OperatorFee float64
}

// Validate checks that both fractions are within [0, 1).
func (f FeeSchedule) Validate() error {
	if f.LicenseFee < 0 || f.LicenseFee >= 1 {
		return fmt.Errorf("license fee rate %f out of range [0,1)", f.LicenseFee)
	}
	if f.OperatorFee < 0 || f.OperatorFee >= 1 {
		return fmt.Errorf("operator fee rate %f out of range [0,1)", f.OperatorFee)
	}
	return nil
}

// Result summarizes one distributed settlement batch.
type Result struct {
	TotalLicenseFee    int64
	TotalOperatorFee   int64
	TotalDistributed   int64
	LicenseAddress     string
	EventsProcessed    int
	EventsSkipped      int
	PublishersCredited int
	// AlreadyProcessed is set when the batch had been distributed before and
	// this invocation changed nothing.
	AlreadyProcessed bool
}

// Processor distributes aggregate incoming payments across per-event shares,
// deducting the license fee and then the operator fee on the remainder, and
// credits publisher accounts with one AdIncome entry per publisher per batch.
type Processor struct {
	store       Store
	license     LicenseReader
	operatorFee float64
	logger      *zap.Logger
}

// NewProcessor creates a Processor. operatorFee is the operator's fraction,
// applied to the post-license remainder of every event value.
func NewProcessor(store Store, license LicenseReader, operatorFee float64, logger *zap.Logger) *Processor {
	return &Processor{
		store:       store,
		license:     license,
		operatorFee: operatorFee,
		logger:      logger,
	}
}

// ProcessPaymentDetails distributes the event shares of one settlement batch.
//
// processedOffset is the caller-tracked high-water mark for this payment; the
// batch commits only if the stored offset still equals it, which makes a
// retried or re-invoked batch a no-op (at-most-once distribution).
//
// A malformed share (empty or unknown publisher, negative value) is skipped
// with a warning and does not abort the rest of the batch. Both fee stages
// round down; the publisher credit absorbs the remainder, so fees plus
// credits always add up to the sum of the processed event values.
func (p *Processor) ProcessPaymentDetails(ctx context.Context, payment *models.AdsPayment, shares []models.EventShare, processedOffset int64) (*Result, error) {
	fee, err := p.license.GetFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("read license fee: %w", err)
	}

	sched := FeeSchedule{LicenseFee: fee, OperatorFee: p.operatorFee}
	if err := sched.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	if addr, addrErr := p.license.GetAddress(ctx); addrErr != nil {
		p.logger.Warn("license address unavailable", zap.Error(addrErr))
	} else {
		res.LicenseAddress = addr
	}

	err = p.store.ProcessBatch(ctx, func(tx BatchTx) error {
		ok, casErr := tx.AdvanceProcessedOffset(ctx, payment.ID, processedOffset, processedOffset+int64(len(shares)))
		if casErr != nil {
			return casErr
		}
		if !ok {
			res.AlreadyProcessed = true
			return nil
		}

		credits := make(map[string]int64)
		for _, share := range shares {
			if share.PublisherAccountID == "" || share.EventValue < 0 {
				p.logger.Warn("skipping malformed event share",
					zap.String("txid", payment.TxID),
					zap.String("event_id", share.EventID),
					zap.String("publisher", share.PublisherAccountID),
					zap.Int64("event_value", share.EventValue),
				)
				res.EventsSkipped++
				continue
			}

			known, existsErr := tx.AccountExists(ctx, share.PublisherAccountID)
			if existsErr != nil {
				return existsErr
			}
			if !known {
				p.logger.Warn("skipping event share for unknown publisher",
					zap.String("txid", payment.TxID),
					zap.String("event_id", share.EventID),
					zap.String("publisher", share.PublisherAccountID),
				)
				res.EventsSkipped++
				continue
			}

			licenseAmount := int64(math.Floor(sched.LicenseFee * float64(share.EventValue)))
			// Operator fee applies to the remainder after the license fee
			operatorAmount := int64(math.Floor(sched.OperatorFee * float64(share.EventValue-licenseAmount)))
			credit := share.EventValue - licenseAmount - operatorAmount

			inserted, insertErr := tx.InsertNetworkPayment(ctx, &models.NetworkPayment{
				AdsPaymentID: payment.ID,
				EventID:      share.EventID,
				AccountID:    share.PublisherAccountID,
				Amount:       credit,
			})
			if insertErr != nil {
				return insertErr
			}
			if !inserted {
				// Idempotency key hit: this event was credited by an earlier batch.
				res.EventsSkipped++
				continue
			}

			res.TotalLicenseFee += licenseAmount
			res.TotalOperatorFee += operatorAmount
			res.TotalDistributed += credit
			res.EventsProcessed++
			credits[share.PublisherAccountID] += credit
		}

		// One AdIncome entry per distinct publisher, in deterministic order.
		publishers := make([]string, 0, len(credits))
		for pub := range credits {
			publishers = append(publishers, pub)
		}
		sort.Strings(publishers)

		for _, pub := range publishers {
			if _, incomeErr := tx.AppendIncome(ctx, pub, credits[pub]); incomeErr != nil {
				return incomeErr
			}
		}
		res.PublishersCredited = len(publishers)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("process payment details for %s: %w", payment.TxID, err)
	}

	if res.AlreadyProcessed {
		p.logger.Info("settlement batch already distributed",
			zap.String("txid", payment.TxID),
			zap.Int64("offset", processedOffset),
		)
		return res, nil
	}

	p.logger.Info("settlement batch distributed",
		zap.String("txid", payment.TxID),
		zap.Int("events", res.EventsProcessed),
		zap.Int("skipped", res.EventsSkipped),
		zap.Int("publishers", res.PublishersCredited),
		zap.Int64("license_fee", res.TotalLicenseFee),
		zap.Int64("operator_fee", res.TotalOperatorFee),
		zap.Int64("distributed", res.TotalDistributed),
	)
	return res, nil
}
