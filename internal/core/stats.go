package core

// OrganizationStats is the admin dashboard summary.
type OrganizationStats struct {
	TotalRevenue     Money
	PendingDues      Money
	ActiveStudents   int
	TransactionCount int
}

// RosterEntry is one student with their outstanding and settled amounts.
type RosterEntry struct {
	Profile   Profile
	TotalDue  Money
	TotalPaid Money
}

// ComputeOrganizationStats recomputes the summary from scratch.
// TransactionCount is the number of payments passed in; callers that cap
// retrieval get a capped count.
func ComputeOrganizationStats(payments []Payment, fees []Fee, profiles []Profile) OrganizationStats {
	var s OrganizationStats
	for _, p := range payments {
		if p.Status == PaymentCompleted {
			s.TotalRevenue = s.TotalRevenue.Add(p.Amount)
		}
	}
	for _, f := range fees {
		if f.Status == FeePending {
			s.PendingDues = s.PendingDues.Add(f.Amount)
		}
	}
	for _, pr := range profiles {
		if pr.Role == RoleStudent {
			s.ActiveStudents++
		}
	}
	s.TransactionCount = len(payments)
	return s
}

// ComputeRoster builds one entry per student profile, in profile order.
func ComputeRoster(profiles []Profile, fees []Fee, payments []Payment) []RosterEntry {
	due := make(map[string]Money)
	for _, f := range fees {
		if f.Status == FeePending {
			due[f.UserID] = due[f.UserID].Add(f.Amount)
		}
	}
	paid := make(map[string]Money)
	for _, p := range payments {
		if p.Status == PaymentCompleted {
			paid[p.UserID] = paid[p.UserID].Add(p.Amount)
		}
	}
	out := make([]RosterEntry, 0, len(profiles))
	for _, pr := range profiles {
		if pr.Role != RoleStudent {
			continue
		}
		out = append(out, RosterEntry{
			Profile:   pr,
			TotalDue:  due[pr.UserID],
			TotalPaid: paid[pr.UserID],
		})
	}
	return out
}
