package posting

import (
	"context"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/coa"
	"github.com/meridian-erp/meridian-erp/internal/journal"
)

// PostTransfer posts an inter-branch transfer as two independently balanced
// journal entries linked by a shared reference number. Each leg offsets
// against its branch's inter-branch clearing account so the debit=credit
// invariant holds per entry.
//
// Legs are posted in ascending branch id order so two transfers running in
// opposite directions lock branch scopes in the same order. When the second
// leg or the transfer record fails, committed legs are rolled back with
// compensating entries and a TransferError names the failed leg.
func (s *Service) PostTransfer(ctx context.Context, input TransferInput) (InterBranchTransaction, error) {
	if err := input.Validate(); err != nil {
		return InterBranchTransaction{}, err
	}
	reference := uuid.NewString()

	fromLeg, err := s.transferLeg(ctx, input, reference, TransferLegFrom)
	if err != nil {
		return InterBranchTransaction{}, &TransferError{Leg: TransferLegFrom, Err: err}
	}
	toLeg, err := s.transferLeg(ctx, input, reference, TransferLegTo)
	if err != nil {
		return InterBranchTransaction{}, &TransferError{Leg: TransferLegTo, Err: err}
	}

	legs := []journal.PostingInput{fromLeg, toLeg}
	legNames := []string{TransferLegFrom, TransferLegTo}
	if input.ToBranchID < input.FromBranchID {
		legs[0], legs[1] = legs[1], legs[0]
		legNames[0], legNames[1] = legNames[1], legNames[0]
	}

	var posted []journal.Entry
	for i, leg := range legs {
		entries, err := s.journal.PostBatch(ctx, leg)
		if err != nil {
			return InterBranchTransaction{}, &TransferError{Leg: legNames[i], Err: err, CompensationErr: s.compensate(ctx, posted)}
		}
		posted = append(posted, entries[0])
	}

	record := InterBranchTransaction{
		FromBranchID:  input.FromBranchID,
		ToBranchID:    input.ToBranchID,
		FromAccountID: input.FromAccountID,
		ToAccountID:   input.ToAccountID,
		Amount:        input.Amount,
		Description:   input.Description,
		Reference:     reference,
	}
	for i, entry := range posted {
		if legNames[i] == TransferLegFrom {
			record.FromEntryID = entry.ID
		} else {
			record.ToEntryID = entry.ID
		}
	}

	saved, err := s.transfers.InsertTransfer(ctx, record)
	if err != nil {
		return InterBranchTransaction{}, &TransferError{Leg: TransferLegRecord, Err: err, CompensationErr: s.compensate(ctx, posted)}
	}
	s.markPosted("transfer", len(posted))
	return saved, nil
}

// transferLeg builds one balanced leg. The from leg credits the source
// account and debits clearing; the to leg mirrors it.
func (s *Service) transferLeg(ctx context.Context, input TransferInput, reference, leg string) (journal.PostingInput, error) {
	branchID := input.FromBranchID
	if leg == TransferLegTo {
		branchID = input.ToBranchID
	}
	roles, err := s.roles.ForBranch(ctx, &branchID)
	if err != nil {
		return journal.PostingInput{}, err
	}
	clearing, err := roles.Account(coa.RoleInterBranchClearing)
	if err != nil {
		return journal.PostingInput{}, err
	}

	var lines []journal.LineInput
	if leg == TransferLegFrom {
		lines = []journal.LineInput{
			{AccountID: clearing, Debit: input.Amount, Description: "Due from receiving branch"},
			{AccountID: input.FromAccountID, Credit: input.Amount, Description: "Transfer out"},
		}
	} else {
		lines = []journal.LineInput{
			{AccountID: input.ToAccountID, Debit: input.Amount, Description: "Transfer in"},
			{AccountID: clearing, Credit: input.Amount, Description: "Due to sending branch"},
		}
	}
	return journal.PostingInput{
		BranchID:    &branchID,
		Date:        input.Date,
		Description: input.Description,
		Reference:   reference,
		Lines:       lines,
	}, nil
}
