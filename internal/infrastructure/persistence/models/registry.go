package models

// All returns every model owned by the settlement core, parents first
func All() []any {
	return []any{
		&ReceivableModel{},
		&AllocationModel{},
		&AnticipationRequestModel{},
		&AnticipationStatusHistoryModel{},
		&ReceivableDocumentModel{},
		&PaymentSettlementModel{},
		&SettlementEntryModel{},
		&ReceivableEventModel{},
		&LedgerTransactionModel{},
		&LedgerEntryModel{},
		&AuditLogModel{},
		&OutboxEntryModel{},
	}
}
