package models

import "example.com/sale/i18n"

func confirm() string {
	return i18n.T("Confirm the quotation")
}

func cancel() string {
	return i18n.T("Cancel") + i18n.T("x")
}
