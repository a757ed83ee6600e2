package approval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDefinitionCollectsAllViolations(t *testing.T) {
	def := &WorkflowDefinition{
		WorkflowType: "vote",
		Steps: []WorkflowStep{
			{
				StepName:              "",
				ApproverType:          ApproverUser,
				RequiredApprovals:     0,
				EscalationAfterHours:  8,
				AutoApproveAfterHours: 4,
				Conditions:            "days >",
			},
		},
	}
	err := validateDefinition(def)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	// 一次性收集全部违规项，而不是首错即返
	require.GreaterOrEqual(t, len(verr.Violations), 6)
	joined := verr.Error()
	require.Contains(t, joined, "名称")
	require.Contains(t, joined, "业务实体类型")
	require.Contains(t, joined, "票数")
	require.Contains(t, joined, "升级时限")
	require.Contains(t, joined, "条件表达式")
}

func TestNormalizeStepsReordersAndDefaults(t *testing.T) {
	def := &WorkflowDefinition{
		PageID: "leave_request",
		Name:   "乱序步骤",
		Steps: []WorkflowStep{
			{StepOrder: 7, StepName: "后", ApproverType: ApproverUser, ApproverIDs: []string{"b"}},
			{StepOrder: 2, StepName: "前", ApproverType: ApproverUser, ApproverIDs: []string{"a"}},
		},
	}
	normalizeSteps(def)

	require.Equal(t, WorkflowSequential, def.WorkflowType)
	require.Equal(t, "前", def.Steps[0].StepName)
	require.Equal(t, 1, def.Steps[0].StepOrder)
	require.Equal(t, 2, def.Steps[1].StepOrder)
	require.Equal(t, 1, def.Steps[0].RequiredApprovals)
}

func TestSaveWorkflowInPlaceWhenUnreferenced(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	id := saveTestWorkflow(t, mgr, sequentialDef("leave_request"))

	// 尚无请求引用，编辑原地生效，不产生新版本
	def, err := mgr.GetWorkflow(ctx, id)
	require.NoError(t, err)
	def.Name = "改名后的审批流"
	savedID, err := mgr.SaveWorkflow(ctx, def)
	require.NoError(t, err)
	require.Equal(t, id, savedID)

	reloaded, err := mgr.GetWorkflow(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "改名后的审批流", reloaded.Name)
	require.Equal(t, 1, reloaded.Version)

	versions, err := mgr.ListWorkflows(ctx, "leave_request")
	require.NoError(t, err)
	require.Len(t, versions, 1)
}

func TestSaveWorkflowVersionsWhenReferenced(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, WithDirectory(stubDirectory{"emp-1": "mgr-1"}))
	ctx := context.Background()

	v1 := saveTestWorkflow(t, mgr, sequentialDef("leave_request"))

	// 在途请求冻结了 v1 快照
	req, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "leave_request", RequesterID: "emp-1"})
	require.NoError(t, err)
	require.Equal(t, v1, req.WorkflowID)

	def, err := mgr.GetWorkflow(ctx, v1)
	require.NoError(t, err)
	def.Steps = []WorkflowStep{
		{StepOrder: 1, StepName: "新版单步", ApproverType: ApproverUser, ApproverIDs: []string{"hr-2"}, RequiredApprovals: 1},
	}
	v2, err := mgr.SaveWorkflow(ctx, def)
	require.NoError(t, err)
	require.NotEqual(t, v1, v2)

	// 当前指针切到 v2，新请求用新版
	current, err := mgr.GetCurrentWorkflow(ctx, "leave_request")
	require.NoError(t, err)
	require.Equal(t, v2, current.ID)
	require.Equal(t, 2, current.Version)

	// 旧版本保持可读且已停用
	old, err := mgr.GetWorkflow(ctx, v1)
	require.NoError(t, err)
	require.False(t, old.IsActive)

	// 在途请求不受编辑影响，继续按 v1 的步骤流转
	require.NoError(t, mgr.SubmitAction(ctx, ActionInput{RequestID: req.ID, ActorID: "mgr-1", Decision: ActionApproved}))
	loaded, err := loadRequest(db, req.ID)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.CurrentStep)
	can, err := mgr.CanApprove(ctx, req.ID, "hr-1")
	require.NoError(t, err)
	require.True(t, can)
}

func TestEnsureCurrentWorkflowIdempotent(t *testing.T) {
	mgr := NewManager(openTestDB(t))
	ctx := context.Background()

	first, err := mgr.EnsureCurrentWorkflow(ctx, "expense_claim")
	require.NoError(t, err)
	second, err := mgr.EnsureCurrentWorkflow(ctx, "expense_claim")
	require.NoError(t, err)
	require.Equal(t, first, second)

	// 默认定义为直属上级单步审批
	def, err := mgr.GetWorkflow(ctx, first)
	require.NoError(t, err)
	require.Len(t, def.Steps, 1)
	require.Equal(t, ApproverManager, def.Steps[0].ApproverType)
}

func TestDeleteWorkflowBlockedByInFlight(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db, WithDirectory(stubDirectory{"emp-1": "mgr-1"}))
	ctx := context.Background()

	id := saveTestWorkflow(t, mgr, sequentialDef("leave_request"))
	req, err := mgr.Instantiate(ctx, InstantiateInput{PageID: "leave_request", RequesterID: "emp-1"})
	require.NoError(t, err)

	err = mgr.DeleteWorkflow(ctx, id)
	var inUse *WorkflowInUseError
	require.ErrorAs(t, err, &inUse)
	require.EqualValues(t, 1, inUse.InFlight)

	// 在途请求终结后删除成功
	require.NoError(t, mgr.Cancel(ctx, req.ID, "admin-1", "取消"))
	require.NoError(t, mgr.DeleteWorkflow(ctx, id))

	def, err := mgr.GetWorkflow(ctx, id)
	require.NoError(t, err)
	require.False(t, def.IsActive)

	// 指针已移除，下次 Ensure 会重建默认定义
	_, err = mgr.GetCurrentWorkflow(ctx, "leave_request")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestGetWorkflowNotFound(t *testing.T) {
	db := openTestDB(t)
	mgr := NewManager(db)

	_, err := mgr.GetWorkflow(context.Background(), "00000000-0000-0000-0000-000000000000")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}
