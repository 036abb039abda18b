package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kannanru/studentfee/client/collection"
	"github.com/kannanru/studentfee/client/journal"
	"github.com/kannanru/studentfee/client/services"
	"github.com/kannanru/studentfee/core/fee"
	"github.com/kannanru/studentfee/core/student"
	"github.com/kannanru/studentfee/services/checkout"
)

type collectOpts struct {
	student string
	plan    string
	heads   []string
	mode    string
}

func (a *app) collectCmd() *cobra.Command {
	var opts collectOpts
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect fees from a student",
		Long: "Walks the collection steps: student, fee plan, fee heads, then payment.\n" +
			"Without --heads every unpaid head is selected.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.collect(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.student, "student", "", "roll number or ID of the student")
	cmd.Flags().StringVar(&opts.plan, "plan", "", "fee plan name or ID (optional if the student has one plan)")
	cmd.Flags().StringSliceVar(&opts.heads, "heads", nil, "fee head names or IDs")
	cmd.Flags().StringVar(&opts.mode, "mode", string(fee.ModeCash), "cash or online")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func (a *app) collect(ctx context.Context, opts collectOpts) error {
	std, err := a.findStudent(ctx, opts.student)
	if err != nil {
		return err
	}

	deps := collection.Deps{
		Fees:     a.svc.Fees,
		Checkout: simulatedCheckout{secret: []byte(a.conf.CheckoutSecret), out: a.out},
		Notifier: collection.WriterNotifier(a.errOut),
	}
	if fee.Mode(opts.mode) == fee.ModeOnline {
		j, err := journal.Open(a.conf.Journal)
		if err != nil {
			return err
		}
		defer j.Close()
		deps.Journal = j
	}
	w := collection.NewWizard(deps)

	if err = w.ChooseStudent(ctx, std); err != nil {
		return err
	}
	planID, err := pickPlan(w.Stage().(collection.SelectPlan).Plans, opts.plan)
	if err != nil {
		return err
	}
	if err = w.ChoosePlan(ctx, planID); err != nil {
		return err
	}

	sh := w.Stage().(collection.SelectHeads)
	printHeads(a.out, sh)
	for _, id := range pickHeads(sh, opts.heads) {
		if err = w.Toggle(id); err != nil {
			return err
		}
	}
	if err = w.Proceed(); err != nil {
		return err
	}
	printBreakdown(a.out, w.Stage().(collection.Confirm).Breakdown)

	pmt, err := w.Pay(ctx, fee.Mode(opts.mode))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "receipt %s\n", pmt.ReceiptNo)
	return nil
}

func (a *app) findStudent(ctx context.Context, ref string) (student.Student, error) {
	stds, err := a.svc.Students.List(ctx, services.StudentQuery{Search: ref})
	if err != nil {
		return student.Student{}, err
	}
	for _, std := range stds {
		if strings.EqualFold(std.RollNo, ref) {
			return std, nil
		}
	}
	return a.svc.Students.Get(ctx, ref)
}

func pickPlan(plans []fee.Plan, ref string) (string, error) {
	if ref == "" {
		switch len(plans) {
		case 0:
			return "", errors.New("no fee plan applies to this student")
		case 1:
			return plans[0].ID, nil
		}
		names := make([]string, len(plans))
		for i, p := range plans {
			names[i] = p.Name
		}
		return "", errors.Errorf("pick a plan with --plan: %s", strings.Join(names, ", "))
	}
	for _, p := range plans {
		if p.ID == ref || strings.EqualFold(p.Name, ref) {
			return p.ID, nil
		}
	}
	return "", collection.ErrUnknownPlan
}

// pickHeads resolves names to IDs. Unknown references are passed through for the wizard to reject.
func pickHeads(sh collection.SelectHeads, refs []string) []string {
	var ids []string
	if len(refs) == 0 {
		for _, hs := range sh.Heads {
			if !hs.Paid {
				ids = append(ids, hs.ID)
			}
		}
		return ids
	}
	for _, ref := range refs {
		id := ref
		for _, hs := range sh.Heads {
			if strings.EqualFold(hs.Name, strings.TrimSpace(ref)) {
				id = hs.ID
				break
			}
		}
		ids = append(ids, id)
	}
	return ids
}

func printHeads(w io.Writer, sh collection.SelectHeads) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s (%s) - %s\n", sh.Student.Name, sh.Student.RollNo, sh.Plan.Name)
	fmt.Fprintln(tw, "HEAD\tAMOUNT\tPAYABLE\tSTATUS")
	for _, hs := range sh.Heads {
		status := "due"
		if hs.Paid {
			status = "paid"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", hs.Name, hs.Amount.StringFixed(2), hs.Payable.StringFixed(2), status)
	}
	if !sh.Fine.Amount.IsZero() {
		fmt.Fprintf(tw, "late fine\t%d days x %s\t%s\t\n", sh.Fine.DaysOverdue, sh.Fine.PerDay.StringFixed(2), sh.Fine.Amount.StringFixed(2))
	}
	_ = tw.Flush()
}

func printBreakdown(w io.Writer, b fee.Breakdown) {
	fmt.Fprintf(w, "subtotal %s  tax %s  fine %s  total %s\n",
		b.Subtotal.StringFixed(2), b.Tax.StringFixed(2), b.Fine.StringFixed(2), b.Total.StringFixed(2))
}

// simulatedCheckout stands in for the vendor overlay on test merchants: it captures immediately
// and signs the callback with the merchant secret.
type simulatedCheckout struct {
	secret []byte
	out    io.Writer
}

func (c simulatedCheckout) Open(_ context.Context, order fee.Order) (fee.GatewayRef, error) {
	if len(c.secret) == 0 {
		return fee.GatewayRef{}, errors.New("no checkout secret configured (--checkout-secret or FEES_CHECKOUT_SECRET)")
	}
	paymentID := "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	fmt.Fprintf(c.out, "checkout: captured %s %s for order %s as %s\n", order.Amount.StringFixed(2), order.Currency, order.ID, paymentID)
	return fee.GatewayRef{
		OrderID:   order.ID,
		PaymentID: paymentID,
		Signature: checkout.Sign(c.secret, order.ID, paymentID),
	}, nil
}
