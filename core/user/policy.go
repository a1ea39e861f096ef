package user

// Scope describes the organisational reach of an action: the course and optional batch it touches,
// the mentors in charge of that part of the graph and the student it concerns (if any).
type Scope struct {
	CourseID  string
	BatchID   string // empty for course-wide actions
	MentorIDs []string
	StudentID string
}

func (s Scope) isMentoredBy(userID string) bool {
	return userID != "" && contains(s.MentorIDs, userID)
}

// policy holds the capabilities of a role.
type policy interface {
	canCreateTask(u User, s Scope) bool
	canGrade(u User, s Scope) bool
	canReview(u User, s Scope) bool
	canViewReview(u User, s Scope) bool
}

var policies = map[string]policy{
	RoleAdmin:   adminPolicy{},
	RoleMentor:  mentorPolicy{},
	RoleStudent: studentPolicy{},
}

func (u User) policy() policy {
	if !u.IsActive {
		return nonePolicy{}
	}
	if p, ok := policies[u.Role]; ok {
		return p
	}
	return nonePolicy{}
}

// CanCreateTask reports whether u may issue a task in s.
func (u User) CanCreateTask(s Scope) bool { return u.policy().canCreateTask(u, s) }

// CanGrade reports whether u may grade a submission made in s.
func (u User) CanGrade(s Scope) bool { return u.policy().canGrade(u, s) }

// CanReview reports whether u may write the progress review of s.StudentID.
func (u User) CanReview(s Scope) bool { return u.policy().canReview(u, s) }

// CanViewReview reports whether u may read the progress review of s.StudentID.
func (u User) CanViewReview(s Scope) bool { return u.policy().canViewReview(u, s) }

type adminPolicy struct{}

func (adminPolicy) canCreateTask(User, Scope) bool { return true }
func (adminPolicy) canGrade(User, Scope) bool      { return true }
func (adminPolicy) canReview(User, Scope) bool     { return false }
func (adminPolicy) canViewReview(User, Scope) bool { return true }

// mentors act on the batches they mentor only; course-wide tasks are issued by admins.
type mentorPolicy struct{}

func (mentorPolicy) canCreateTask(u User, s Scope) bool {
	return s.BatchID != "" && s.isMentoredBy(u.ID)
}

func (mentorPolicy) canGrade(u User, s Scope) bool     { return s.isMentoredBy(u.ID) }
func (mentorPolicy) canReview(u User, s Scope) bool    { return s.BatchID != "" && s.isMentoredBy(u.ID) }
func (mentorPolicy) canViewReview(u User, s Scope) bool { return s.isMentoredBy(u.ID) }

type studentPolicy struct{}

func (studentPolicy) canCreateTask(User, Scope) bool { return false }
func (studentPolicy) canGrade(User, Scope) bool      { return false }
func (studentPolicy) canReview(User, Scope) bool     { return false }
func (studentPolicy) canViewReview(u User, s Scope) bool {
	return s.StudentID != "" && s.StudentID == u.ID
}

type nonePolicy struct{}

func (nonePolicy) canCreateTask(User, Scope) bool { return false }
func (nonePolicy) canGrade(User, Scope) bool      { return false }
func (nonePolicy) canReview(User, Scope) bool     { return false }
func (nonePolicy) canViewReview(User, Scope) bool { return false }
