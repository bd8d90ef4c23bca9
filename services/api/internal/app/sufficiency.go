package app

// Confidence is how well the assembled context grounds an answer.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

type signal int

const (
	signalBusinessData signal = iota
	signalContact
	signalDeal
	signalProducts
	signalTasks
	signalInvoices
	signalDeals
)

// sufficiency is the outcome of the context sufficiency check.
type sufficiency struct {
	Confidence Confidence
	Signals    int
	Missing    []signal
	// UnmatchedRecipient is set when a document names someone not in the CRM.
	UnmatchedRecipient string
}

func (s sufficiency) needsClarification() bool {
	return s.Confidence == ConfidenceLow
}

// assessSufficiency counts grounding signals against policy. A proposal
// naming a recipient that matched no contact is always low; other document
// types address events or audiences rather than contacts.
func assessSufficiency(bc businessContext, docType DocumentType, isDocument bool, policy SufficiencyPolicy) sufficiency {
	present := map[signal]bool{
		signalBusinessData: bc.HasTenant,
		signalContact:      bc.Contact != nil,
		signalDeal:         bc.Deal != nil,
		signalProducts:     len(soldProducts(bc.Products)) > 0,
		signalTasks:        len(bc.Tasks) > 0,
		signalInvoices:     len(bc.Overdue) > 0 || len(bc.Pending) > 0,
		signalDeals:        len(bc.Deals) > 0,
	}
	var out sufficiency
	for _, sig := range []signal{signalBusinessData, signalContact, signalDeal, signalProducts, signalTasks, signalInvoices, signalDeals} {
		if present[sig] {
			out.Signals++
		} else {
			out.Missing = append(out.Missing, sig)
		}
	}
	switch {
	case out.Signals >= policy.High:
		out.Confidence = ConfidenceHigh
	case out.Signals >= policy.Medium:
		out.Confidence = ConfidenceMedium
	default:
		out.Confidence = ConfidenceLow
	}
	if isDocument && docType == DocProposal && bc.Recipient != "" && bc.Contact == nil {
		out.Confidence = ConfidenceLow
		out.UnmatchedRecipient = bc.Recipient
	}
	return out
}

var clarifyingQuestions = map[signal]string{
	signalBusinessData: "I don't have a business profile for your account yet. Could you tell me what your business sells and who your customers are?",
	signalContact:      "Which customer or company is this about? Use the name as it appears in your contacts.",
	signalProducts:     "Which product or service should I focus on? I couldn't find any recorded product sales.",
}

const genericClarifyingQuestion = "Could you add a little more detail, such as the customer, invoice, deal or product your question is about?"

// clarifyingQuestion picks the fixed question for the first missing signal.
func clarifyingQuestion(s sufficiency) string {
	if s.UnmatchedRecipient != "" {
		return "I couldn't find \"" + s.UnmatchedRecipient + "\" in your contacts. Who is this for? " +
			"Share the contact or company name as it appears in your CRM, or add them as a contact first."
	}
	for _, sig := range s.Missing {
		if q, ok := clarifyingQuestions[sig]; ok {
			return q
		}
	}
	return genericClarifyingQuestion
}
